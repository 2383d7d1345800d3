// Package cmd implements the taskrun CLI
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ngld/taskrun/pkg/config"
	"github.com/ngld/taskrun/pkg/script"
	"github.com/ngld/taskrun/pkg/taskgraph"
)

type runOptions struct {
	workDir    string
	args       []string
	dryRun     bool
	force      bool
	list       bool
	sequential bool
	progress   bool
	noCache    bool
	stdout     io.Writer
	stderr     io.Writer
}

// reportedError marks errors that have already been logged
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:   "taskrun [task...] [option=value...]",
	Short: "Runs the tasks declared in tasks.star",
	Long: `This command parses the first tasks.star file it finds in the current directory or its
parents and executes the given tasks. Without a task, the default task is run.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOptions{
			args:   args,
			stdout: cmd.OutOrStdout(),
			stderr: cmd.ErrOrStderr(),
		}

		var err error
		flags := cmd.Flags()
		for name, target := range map[string]*bool{
			"dry":        &opts.dryRun,
			"force":      &opts.force,
			"list":       &opts.list,
			"sequential": &opts.sequential,
			"progress":   &opts.progress,
			"no-cache":   &opts.noCache,
		} {
			*target, err = flags.GetBool(name)
			if err != nil {
				return err
			}
		}

		opts.workDir, err = os.Getwd()
		if err != nil {
			return eris.Wrap(err, "failed to retrieve the current working directory")
		}

		return runTasks(opts)
	},
}

func init() {
	rootCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	rootCmd.Flags().BoolP("force", "f", false, "force build; always execute the passed steps even if they don't have to run")
	rootCmd.Flags().BoolP("list", "l", false, "list the available tasks and options")
	rootCmd.Flags().BoolP("sequential", "s", false, "run prerequisites one at a time")
	rootCmd.Flags().BoolP("progress", "p", false, "show a progress bar instead of the full log")
	rootCmd.Flags().Bool("no-cache", false, "always parse the task script")
}

// Execute runs the CLI and exits with status 1 on failure
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, out io.Writer, quiet bool) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.Log.JSON {
		logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(NewConsoleWriter(out))
	}

	level := cfg.LogLevel()
	if quiet && level < zerolog.WarnLevel {
		level = zerolog.WarnLevel
	}

	return logger.Level(level)
}

// findTaskFile searches the given directory and its parents for the task script
func findTaskFile(dir, name string) (string, error) {
	path := dir
	for {
		taskPath := filepath.Join(path, name)
		_, err := os.Stat(taskPath)
		if err == nil {
			return taskPath, nil
		}
		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "failed to check %s", taskPath)
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", eris.Errorf("no %s file found", name)
		}

		path = parent
	}
}

func loadDefinitions(ctx context.Context, cfg *config.Config, taskPath string, options map[string]string, noCache bool) (*script.Definitions, error) {
	projectRoot := filepath.Dir(taskPath)
	cachePath := filepath.Join(projectRoot, cfg.CacheFile)

	if !noCache {
		if defs, fresh := script.CacheIsFresh(cachePath, taskPath, options); fresh {
			taskgraph.Log(ctx).Debug().Str("path", cachePath).Msg("using cached task definitions")
			return defs, nil
		}
	}

	defs, err := script.Load(ctx, taskPath, projectRoot, options)
	if err != nil {
		return nil, err
	}

	if !noCache {
		err = script.WriteCache(cachePath, options, defs)
		if err != nil {
			taskgraph.Log(ctx).Warn().Err(err).Msg("failed to write the task cache")
		}
	}

	return defs, nil
}

func runTasks(opts runOptions) error {
	cfg, err := config.Load(filepath.Join(opts.workDir, "taskrun.toml"))
	if err != nil {
		fmt.Fprintf(opts.stderr, "Error: %s\n", err)
		return &reportedError{err}
	}

	logger := newLogger(cfg, opts.stderr, opts.progress)
	ctx := taskgraph.WithLogger(context.Background(), &logger)

	fail := func(err error, msg string, args ...interface{}) error {
		logger.Error().Err(err).Msgf(msg, args...)
		return &reportedError{err}
	}

	taskArgs := make([]string, 0)
	options := make(map[string]string)
	for _, part := range opts.args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			taskArgs = append(taskArgs, part)
		}
	}

	taskPath, err := findTaskFile(opts.workDir, cfg.TasksFile)
	if err != nil {
		return fail(err, "failed to find the task script")
	}

	defs, err := loadDefinitions(ctx, cfg, taskPath, options, opts.noCache)
	if err != nil {
		return fail(err, "failed to parse tasks")
	}

	registry := taskgraph.NewRegistry()
	err = script.Build(defs, registry, script.BuildOptions{Force: opts.force})
	if err != nil {
		return fail(err, "failed to build tasks")
	}

	if opts.list {
		printTasks(opts.stdout, defs, registry)
		return nil
	}

	if len(taskArgs) == 0 {
		taskArgs = []string{cfg.DefaultTask}
	}

	runCtx := taskgraph.WithDryRun(ctx, opts.dryRun)
	for _, name := range taskArgs {
		runnerOpts := []taskgraph.Option{
			taskgraph.WithParallelDeps(cfg.Parallel && !opts.sequential),
		}

		var progress *progressObserver
		if opts.progress {
			plan, err := registry.Plan(name)
			if err != nil {
				return fail(err, "failed task %s", name)
			}

			total := 0
			for _, item := range plan {
				if task, _ := registry.Lookup(item); task.Action != nil {
					total++
				}
			}

			progress = newProgressObserver(opts.stderr, total, name)
			runnerOpts = append(runnerOpts, taskgraph.WithObserver(progress))
		}

		err = taskgraph.NewRunner(registry, runnerOpts...).Run(runCtx, name)
		if progress != nil {
			progress.finish()
		}

		if err != nil {
			return fail(err, "failed task %s", name)
		}
	}

	return nil
}

func printTasks(out io.Writer, defs *script.Definitions, registry *taskgraph.Registry) {
	names := registry.Names(false)
	maxNameLen := 0
	for _, name := range names {
		if len(name) > maxNameLen {
			maxNameLen = len(name)
		}
	}

	colorstring.Fprintln(out, "[bold]Available tasks:")
	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range names {
		task, _ := registry.Lookup(name)
		fmt.Fprintf(out, lineFmt, name+":", task.Desc)
	}

	if len(defs.Options) > 0 {
		optionNames := make([]string, 0, len(defs.Options))
		for name := range defs.Options {
			optionNames = append(optionNames, name)
		}
		sort.Strings(optionNames)

		colorstring.Fprintln(out, "\n[bold]Options:")
		for _, name := range optionNames {
			option := defs.Options[name]
			fmt.Fprintf(out, " * %s=%s  %s\n", name, option.DefaultValue, option.Help)
		}
	}
}
