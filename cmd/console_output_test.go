package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestConsoleWriterPrefixes(t *testing.T) {
	out := new(bytes.Buffer)
	logger := zerolog.New(NewConsoleWriter(out))

	logger.Info().Str("task", "compile").Bool("command", true).Msg("tsc -p [src]")
	logger.Error().Err(errors.New("boom")).Msg("failed task compile")

	lines := out.String()
	assert.Contains(t, lines, "compile: $ tsc -p [src]")
	assert.Contains(t, lines, "Error: failed task compile")
	assert.Contains(t, lines, "boom")
}

func TestConsoleWriterRejectsGarbage(t *testing.T) {
	w := NewConsoleWriter(new(bytes.Buffer))

	_, err := w.Write([]byte("not json"))
	assert.Error(t, err)
}
