package actions

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

// DeleteAction removes everything matched by Patterns. Nothing matching is not an error
// so running it on an already clean tree succeeds.
type DeleteAction struct {
	Base     string
	Patterns []string
}

// Delete returns an action that deletes the files and directories matching patterns.
func Delete(base string, patterns ...string) *DeleteAction {
	return &DeleteAction{Base: base, Patterns: patterns}
}

func (a *DeleteAction) Run(ctx context.Context) error {
	items, err := ResolvePatterns(a.Base, a.Patterns)
	if err != nil {
		return err
	}

	logger := taskgraph.Log(ctx)
	if taskgraph.IsDryRun(ctx) {
		for _, item := range items {
			logger.Info().Str("path", item).Msgf("would delete %s", item)
		}
		return nil
	}

	logger.Debug().Msgf("deleting %d paths", len(items))
	return RemovePaths(items, true, true)
}

// CopyAction copies every match into Dest. The path of each match relative to the static
// part of its pattern is preserved. If Rename is set, the file name of each copy is
// replaced with it which only makes sense for patterns matching a single file.
type CopyAction struct {
	Base     string
	Patterns []string
	Dest     string
	Rename   string
}

// Copy returns an action that copies the files matching patterns to dest.
func Copy(base string, patterns []string, dest, rename string) *CopyAction {
	return &CopyAction{Base: base, Patterns: patterns, Dest: dest, Rename: rename}
}

func (a *CopyAction) Run(ctx context.Context) error {
	dest := a.Dest
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(a.Base, dest)
	}

	logger := taskgraph.Log(ctx)
	copied := 0
	for _, pattern := range a.Patterns {
		if len(pattern) > 0 && pattern[0] == '!' {
			continue
		}

		items, err := ResolvePatterns(a.Base, append([]string{pattern}, excludes(a.Patterns)...))
		if err != nil {
			return err
		}

		patternBase := globBase(a.Base, pattern)
		for _, item := range items {
			info, err := os.Stat(item)
			if err != nil {
				return eris.Wrapf(err, "could not stat %s", item)
			}
			if info.IsDir() {
				continue
			}

			rel, err := filepath.Rel(patternBase, item)
			if err != nil {
				return eris.Wrapf(err, "failed to resolve %s", item)
			}
			if a.Rename != "" {
				rel = filepath.Join(filepath.Dir(rel), a.Rename)
			}
			target := filepath.Join(dest, rel)

			if taskgraph.IsDryRun(ctx) {
				logger.Info().Str("path", item).Msgf("would copy %s to %s", item, target)
				continue
			}

			err = CopyFile(item, target)
			if err != nil {
				return err
			}
			copied++
		}
	}

	logger.Debug().Msgf("copied %d files to %s", copied, dest)
	return nil
}

func excludes(patterns []string) []string {
	result := make([]string, 0)
	for _, pattern := range patterns {
		if len(pattern) > 0 && pattern[0] == '!' {
			result = append(result, pattern)
		}
	}

	return result
}

// ConcatAction concatenates all matches in pattern order into Dest.
type ConcatAction struct {
	Base     string
	Patterns []string
	Dest     string
}

// Concat returns an action that concatenates the files matching patterns into dest.
func Concat(base string, patterns []string, dest string) *ConcatAction {
	return &ConcatAction{Base: base, Patterns: patterns, Dest: dest}
}

func (a *ConcatAction) Run(ctx context.Context) error {
	items, err := ResolvePatterns(a.Base, a.Patterns)
	if err != nil {
		return err
	}

	if len(items) == 0 {
		return eris.Errorf("no files matched %v", a.Patterns)
	}

	dest := a.Dest
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(a.Base, dest)
	}

	logger := taskgraph.Log(ctx)
	if taskgraph.IsDryRun(ctx) {
		logger.Info().Str("path", dest).Msgf("would concatenate %d files into %s", len(items), dest)
		return nil
	}

	err = os.MkdirAll(filepath.Dir(dest), 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", dest)
	}

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}

	for _, item := range items {
		err = appendFile(out, item)
		if err != nil {
			out.Close()
			return err
		}
	}

	logger.Debug().Str("path", dest).Msgf("concatenated %d files", len(items))
	return eris.Wrapf(out.Close(), "failed to write %s", dest)
}

func appendFile(out io.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", path)
	}
	defer in.Close()

	_, err = io.Copy(out, in)
	if err != nil {
		return eris.Wrapf(err, "failed to read %s", path)
	}

	// make sure the next file starts on a new line
	_, err = out.Write([]byte("\n"))
	return eris.Wrap(err, "failed to write separator")
}
