package cmd

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHelper(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	return rootCmd.Execute()
}

func TestPosixHelpers(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	source := filepath.Join(dir, "source.txt")
	require.NoError(t, ioutil.WriteFile(source, []byte("hi"), 0o644))

	require.NoError(t, runHelper(t, "mkdir", "-p", nested))
	assert.DirExists(t, nested)

	require.NoError(t, runHelper(t, "cp", source, nested))
	assert.FileExists(t, filepath.Join(nested, "source.txt"))

	moved := filepath.Join(dir, "moved.txt")
	require.NoError(t, runHelper(t, "mv", source, moved))
	assert.NoFileExists(t, source)
	assert.FileExists(t, moved)

	require.NoError(t, runHelper(t, "rm", "-r", filepath.Join(dir, "a")))
	assert.NoDirExists(t, filepath.Join(dir, "a"))

	assert.Error(t, runHelper(t, "rm", filepath.Join(dir, "missing")))
	assert.NoError(t, runHelper(t, "rm", "-f", filepath.Join(dir, "missing")))
}
