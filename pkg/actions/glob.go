package actions

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

const globChars = "*?["

func shellReadDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	// "**" reads every match, files included
	info, err := os.Stat(path)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	if !info.IsDir() {
		return nil, nil
	}

	return ioutil.ReadDir(path)
}

func absPattern(base, pattern string) string {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(base, pattern)
	}

	return filepath.ToSlash(pattern)
}

// ResolvePatterns expands the given glob patterns relative to base. "**" matches any number
// of directories and patterns prefixed with "!" remove previous matches. Matches are
// returned in pattern order without duplicates; patterns without glob characters are only
// returned if the path exists.
func ResolvePatterns(base string, patterns []string) ([]string, error) {
	cfg := expand.Config{
		ReadDir:  shellReadDir,
		GlobStar: true,
	}
	parser := syntax.NewParser()

	result := []string{}
	seen := make(map[string]int)
	for _, item := range patterns {
		exclude := strings.HasPrefix(item, "!")
		if exclude {
			item = item[1:]
		}
		item = absPattern(base, item)

		words := make([]*syntax.Word, 0)
		err := parser.Words(strings.NewReader(item), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse pattern %s", item)
		}

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", item)
		}

		for _, match := range matches {
			// a pattern that didn't match anything is returned as-is
			if strings.ContainsAny(match, globChars) {
				continue
			}

			if _, err := os.Lstat(match); err != nil {
				continue
			}

			match = filepath.Clean(match)
			if exclude {
				if idx, ok := seen[match]; ok {
					result[idx] = ""
					delete(seen, match)
				}
			} else if _, ok := seen[match]; !ok {
				seen[match] = len(result)
				result = append(result, match)
			}
		}
	}

	filtered := result[:0]
	for _, item := range result {
		if item != "" {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

// globBase returns the leading part of a pattern that doesn't contain any glob characters.
func globBase(base, pattern string) string {
	pattern = absPattern(base, strings.TrimPrefix(pattern, "!"))
	if !strings.ContainsAny(pattern, globChars) {
		return filepath.Dir(filepath.FromSlash(pattern))
	}

	parts := strings.Split(pattern, "/")
	static := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.ContainsAny(part, globChars) {
			break
		}
		static = append(static, part)
	}

	return filepath.Clean(filepath.FromSlash(strings.Join(static, "/")))
}
