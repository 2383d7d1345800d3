package actions

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

// ShellAction runs shell scripts through a portable POSIX shell interpreter. This is how
// external tools (compilers, bundlers, minifiers) are invoked.
type ShellAction struct {
	Name    string
	Base    string
	Env     map[string]string
	Scripts []string
	Stdout  io.Writer
	Stderr  io.Writer
}

// Shell returns an action that runs the given scripts in base with the extra env vars.
func Shell(base string, env map[string]string, scripts ...string) *ShellAction {
	return &ShellAction{
		Base:    base,
		Env:     env,
		Scripts: scripts,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// EnvList merges the process environment with the given overrides.
func EnvList(overrides map[string]string) []string {
	osEnv := os.Environ()
	envVars := make([]string, 0, len(osEnv)+len(overrides))
	for _, item := range osEnv {
		parts := strings.SplitN(item, "=", 2)
		key := parts[0]
		if runtime.GOOS == "windows" {
			key = strings.ToUpper(key)
		}

		// skip overriden entries to avoid conflicts
		if _, present := overrides[key]; !present {
			envVars = append(envVars, item)
		}
	}

	for name, value := range overrides {
		envVars = append(envVars, fmt.Sprintf("%s=%s", name, value))
	}

	return envVars
}

var defaultExecHandler = interp.DefaultExecHandler(2 * time.Second)

type fileCommand func(dir string, flags string, args []string) error

// these always use our cross-platform implementation to make sure they behave consistently
var fileCommands = map[string]fileCommand{
	"rm": func(dir, flags string, args []string) error {
		return RemovePaths(resolveArgs(dir, args), strings.ContainsAny(flags, "rR"), strings.Contains(flags, "f"))
	},
	"mv": func(dir, flags string, args []string) error {
		if len(args) < 2 {
			return eris.New("mv: not enough parameters")
		}
		paths := resolveArgs(dir, args)
		return MovePaths(paths[:len(paths)-1], paths[len(paths)-1])
	},
	"mkdir": func(dir, flags string, args []string) error {
		return MakeDirs(resolveArgs(dir, args), strings.Contains(flags, "p"))
	},
	"cp": func(dir, flags string, args []string) error {
		if len(args) < 2 {
			return eris.New("cp: not enough parameters")
		}
		paths := resolveArgs(dir, args)
		return CopyPaths(paths[:len(paths)-1], paths[len(paths)-1], strings.ContainsAny(flags, "rR"))
	},
}

func resolveArgs(dir string, args []string) []string {
	result := make([]string, len(args))
	for idx, arg := range args {
		if filepath.IsAbs(arg) {
			result[idx] = arg
		} else {
			result[idx] = filepath.Join(dir, arg)
		}
	}

	return result
}

// SplitFlags separates leading short flags (-rf, -p) from the remaining arguments.
func SplitFlags(args []string) (string, []string) {
	flags := ""
	for idx, arg := range args {
		if arg == "--" {
			return flags, args[idx+1:]
		}

		if len(arg) > 1 && arg[0] == '-' {
			flags += arg[1:]
			continue
		}

		return flags, args[idx:]
	}

	return flags, nil
}

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 {
		if command, ok := fileCommands[args[0]]; ok {
			hc := interp.HandlerCtx(ctx)
			flags, rest := SplitFlags(args[1:])

			err := command(hc.Dir, flags, rest)
			if err != nil {
				fmt.Fprintf(hc.Stderr, "%s: %s\n", args[0], err.Error())
				return interp.NewExitStatus(1)
			}
			return nil
		}
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

// ParseScripts parses each script and returns the contained statements.
func (a *ShellAction) ParseScripts() ([]*syntax.Stmt, error) {
	parser := syntax.NewParser()
	stmts := make([]*syntax.Stmt, 0, len(a.Scripts))

	for idx, script := range a.Scripts {
		result, err := parser.Parse(strings.NewReader(script), fmt.Sprintf("%s:%d", a.Name, idx))
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse command %s", script)
		}

		stmts = append(stmts, result.Stmts...)
	}

	return stmts, nil
}

func (a *ShellAction) Run(ctx context.Context) error {
	stmts, err := a.ParseScripts()
	if err != nil {
		return err
	}

	runner, err := interp.New(
		interp.Dir(a.Base),
		interp.Env(expand.ListEnviron(EnvList(a.Env)...)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, a.Stdout, a.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize runner")
	}

	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}
	logger := taskgraph.Log(ctx)
	dryRun := taskgraph.IsDryRun(ctx)

	for _, stmt := range stmts {
		strBuffer.Reset()
		err = printer.Print(&strBuffer, stmt)
		if err != nil {
			return eris.Wrap(err, "failed to print command")
		}

		command := strBuffer.String()
		logger.Info().Bool("command", true).Msg(command)
		if dryRun {
			continue
		}

		err = runner.Run(ctx, stmt)
		if err != nil {
			return eris.Wrapf(err, "command %s failed", command)
		}

		if runner.Exited() {
			return nil
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
