package taskgraph

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Observer is notified whenever a task's action starts and finishes.
type Observer interface {
	TaskStarted(name string)
	TaskFinished(name string, err error)
}

// Runner executes tasks from a Registry.
type Runner struct {
	registry *Registry
	parallel bool
	observer Observer
}

// Option configures a Runner
type Option func(*Runner)

// WithParallelDeps selects whether prerequisites run concurrently (the default) or one at a
// time in the order they were listed.
func WithParallelDeps(parallel bool) Option {
	return func(r *Runner) {
		r.parallel = parallel
	}
}

// WithObserver installs an observer for task progress.
func WithObserver(observer Observer) Option {
	return func(r *Runner) {
		r.observer = observer
	}
}

// NewRunner creates a runner for the given registry
func NewRunner(registry *Registry, opts ...Option) *Runner {
	r := &Runner{
		registry: registry,
		parallel: true,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

type outcome struct {
	done chan struct{}
	err  error
}

type runState struct {
	lock     sync.Mutex
	outcomes map[string]*outcome
}

// Run executes the named task: prerequisites, then the action, then the steps.
// Each task runs at most once per call; a task that is reached again shares the first
// outcome.
func (r *Runner) Run(ctx context.Context, name string) error {
	if _, err := r.registry.Plan(name); err != nil {
		return err
	}

	state := &runState{
		outcomes: make(map[string]*outcome),
	}
	return r.runTask(ctx, state, name)
}

func (r *Runner) runTask(ctx context.Context, state *runState, name string) error {
	state.lock.Lock()
	result, ok := state.outcomes[name]
	if ok {
		state.lock.Unlock()
		Log(ctx).Debug().Str("task", name).Msg("already run")

		select {
		case <-result.done:
			return result.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	result = &outcome{done: make(chan struct{})}
	state.outcomes[name] = result
	state.lock.Unlock()

	result.err = r.execute(ctx, state, name)
	close(result.done)
	return result.err
}

func (r *Runner) execute(ctx context.Context, state *runState, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Plan() made sure that every reachable task exists
	task, _ := r.registry.Lookup(name)

	if err := r.runDeps(ctx, state, task); err != nil {
		return err
	}

	if task.Action != nil {
		if err := r.runAction(ctx, task); err != nil {
			return err
		}
	}

	for _, step := range task.Steps {
		if err := r.runTask(ctx, state, step); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) runAction(ctx context.Context, task *Task) error {
	logger := Log(ctx).With().Str("task", task.Name).Logger()
	logger.Info().Msg("starting")
	if r.observer != nil {
		r.observer.TaskStarted(task.Name)
	}

	start := time.Now()
	err := runRecovered(WithLogger(ctx, &logger), task.Action)
	if err != nil {
		err = &ActionFailureError{Task: task.Name, Err: err}
	}

	if r.observer != nil {
		r.observer.TaskFinished(task.Name, err)
	}

	if err != nil {
		return err
	}

	logger.Info().Msgf("finished after %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// runRecovered turns a panicking action into an error.
func runRecovered(ctx context.Context, action Action) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &PanicError{Value: recovered, Stack: debug.Stack()}
		}
	}()

	return action.Run(ctx)
}

func (r *Runner) runDeps(ctx context.Context, state *runState, task *Task) error {
	if len(task.Deps) == 0 {
		return nil
	}

	if !r.parallel || len(task.Deps) == 1 {
		for _, dep := range task.Deps {
			if err := r.runTask(ctx, state, dep); err != nil {
				return &PrerequisiteFailureError{Task: task.Name, Prerequisite: dep, Err: err}
			}
		}
		return nil
	}

	// The first failure cancels gctx; the remaining prerequisites see the cancellation
	// through their context and Wait() still waits for all of them to return.
	g, gctx := errgroup.WithContext(ctx)
	for _, dep := range task.Deps {
		dep := dep
		g.Go(func() error {
			if err := r.runTask(gctx, state, dep); err != nil {
				return &PrerequisiteFailureError{Task: task.Name, Prerequisite: dep, Err: err}
			}
			return nil
		})
	}

	return g.Wait()
}
