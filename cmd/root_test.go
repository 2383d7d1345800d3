package cmd

import (
	"bytes"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

const cliScript = `
target = option("target", "out.txt", help = "file written by the build task")

def configure():
    task(
        name = "prepare",
        desc = "creates the output folder",
        cmds = ["mkdir -p build"],
    )
    task(
        name = "build",
        desc = "writes the target file",
        deps = ["prepare"],
        cmds = ["echo built > build/" + target],
    )
    task(
        name = "broken",
        cmds = ["exit 3"],
    )
    task(name = "default", deps = ["build"])
`

type cliEnv struct {
	dir    string
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newCliEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "tasks.star"), []byte(cliScript), 0o644))

	return &cliEnv{
		dir:    dir,
		stdout: new(bytes.Buffer),
		stderr: new(bytes.Buffer),
	}
}

func (e *cliEnv) options(args ...string) runOptions {
	return runOptions{
		workDir: e.dir,
		args:    args,
		noCache: true,
		stdout:  e.stdout,
		stderr:  e.stderr,
	}
}

func TestRunDefaultTask(t *testing.T) {
	env := newCliEnv(t)

	require.NoError(t, runTasks(env.options()))

	content, err := ioutil.ReadFile(filepath.Join(env.dir, "build", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "built\n", string(content))
}

func TestRunWithOption(t *testing.T) {
	env := newCliEnv(t)

	require.NoError(t, runTasks(env.options("build", "target=custom.txt")))
	assert.FileExists(t, filepath.Join(env.dir, "build", "custom.txt"))
	assert.NoFileExists(t, filepath.Join(env.dir, "build", "out.txt"))
}

func TestRunFromSubdirectory(t *testing.T) {
	env := newCliEnv(t)
	sub := filepath.Join(env.dir, "nested", "deeper")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	opts := env.options("prepare")
	opts.workDir = sub
	require.NoError(t, runTasks(opts))

	assert.DirExists(t, filepath.Join(env.dir, "build"))
}

func TestRunDryRun(t *testing.T) {
	env := newCliEnv(t)

	opts := env.options()
	opts.dryRun = true
	require.NoError(t, runTasks(opts))

	assert.NoDirExists(t, filepath.Join(env.dir, "build"))
	assert.Contains(t, env.stderr.String(), "mkdir -p build")
}

func TestRunFailingTask(t *testing.T) {
	env := newCliEnv(t)

	err := runTasks(env.options("broken"))
	require.Error(t, err)

	var reported *reportedError
	assert.True(t, errors.As(err, &reported))

	var actionErr *taskgraph.ActionFailureError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, "broken", actionErr.Task)
	assert.Contains(t, env.stderr.String(), "failed task broken")
}

func TestRunUnknownTask(t *testing.T) {
	env := newCliEnv(t)

	err := runTasks(env.options("missing"))
	require.Error(t, err)

	var unknown *taskgraph.UnknownTaskError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "missing", unknown.Name)
}

func TestRunWithoutTaskFile(t *testing.T) {
	opts := runOptions{
		workDir: t.TempDir(),
		noCache: true,
		stdout:  new(bytes.Buffer),
		stderr:  new(bytes.Buffer),
	}

	err := runTasks(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tasks.star file found")
}

func TestListTasks(t *testing.T) {
	env := newCliEnv(t)

	opts := env.options()
	opts.list = true
	require.NoError(t, runTasks(opts))

	out := env.stdout.String()
	assert.Contains(t, out, "Available tasks:")
	assert.Contains(t, out, "prepare:")
	assert.Contains(t, out, "creates the output folder")
	assert.Contains(t, out, "target=out.txt")
	assert.NoDirExists(t, filepath.Join(env.dir, "build"))
}

func TestRunUsesCache(t *testing.T) {
	env := newCliEnv(t)

	opts := env.options("prepare")
	opts.noCache = false
	require.NoError(t, runTasks(opts))
	assert.FileExists(t, filepath.Join(env.dir, ".taskrun.cache"))

	// a second run reads the cached definitions
	require.NoError(t, runTasks(opts))
	assert.DirExists(t, filepath.Join(env.dir, "build"))
}

func TestRunConfigFile(t *testing.T) {
	env := newCliEnv(t)
	require.NoError(t, ioutil.WriteFile(filepath.Join(env.dir, "taskrun.toml"), []byte("default_task = \"prepare\"\n"), 0o644))

	require.NoError(t, runTasks(env.options()))

	assert.DirExists(t, filepath.Join(env.dir, "build"))
	assert.NoFileExists(t, filepath.Join(env.dir, "build", "out.txt"))
}

func TestRunSequentialWithProgress(t *testing.T) {
	env := newCliEnv(t)

	opts := env.options("build")
	opts.sequential = true
	opts.progress = true
	require.NoError(t, runTasks(opts))

	assert.FileExists(t, filepath.Join(env.dir, "build", "out.txt"))
}
