package actions

import (
	"context"
	"io"
	"os"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/ulikunitz/xz"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

// Supported compression formats
const (
	FormatBrotli = "br"
	FormatXZ     = "xz"
)

// CompressAction writes a compressed copy of each match next to the original file.
type CompressAction struct {
	Base     string
	Patterns []string
	Format   string
}

// Compress returns an action that compresses the files matching patterns. Format is either
// "br" or "xz".
func Compress(base string, patterns []string, format string) (*CompressAction, error) {
	switch format {
	case FormatBrotli, FormatXZ:
	case "":
		format = FormatBrotli
	default:
		return nil, eris.Errorf("unsupported compression format %s", format)
	}

	return &CompressAction{Base: base, Patterns: patterns, Format: format}, nil
}

func (a *CompressAction) Run(ctx context.Context) error {
	items, err := ResolvePatterns(a.Base, a.Patterns)
	if err != nil {
		return err
	}

	logger := taskgraph.Log(ctx)
	for _, item := range items {
		info, err := os.Stat(item)
		if err != nil {
			return eris.Wrapf(err, "could not stat %s", item)
		}
		if info.IsDir() {
			continue
		}

		target := item + "." + a.Format
		if taskgraph.IsDryRun(ctx) {
			logger.Info().Str("path", item).Msgf("would compress %s to %s", item, target)
			continue
		}

		err = compressFile(item, target, a.Format)
		if err != nil {
			return err
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	logger.Debug().Msgf("compressed %d files", len(items))
	return nil
}

func compressFile(src, dest, format string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}

	var writer io.WriteCloser
	switch format {
	case FormatBrotli:
		writer = brotli.NewWriterLevel(out, brotli.BestCompression)
	case FormatXZ:
		writer, err = xz.NewWriter(out)
		if err != nil {
			out.Close()
			return eris.Wrap(err, "failed to initialize xz encoder")
		}
	default:
		out.Close()
		return eris.Errorf("unsupported compression format %s", format)
	}

	_, err = io.Copy(writer, in)
	if err != nil {
		writer.Close()
		out.Close()
		return eris.Wrapf(err, "failed to compress %s", src)
	}

	err = writer.Close()
	if err != nil {
		out.Close()
		return eris.Wrapf(err, "failed to finish %s", dest)
	}

	return eris.Wrapf(out.Close(), "failed to write %s", dest)
}
