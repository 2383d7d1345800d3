package taskgraph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	lock    sync.Mutex
	entries []string
}

func (r *recorder) record(entry string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recorder) action(entry string) Action {
	return Func(func() error {
		r.record(entry)
		return nil
	})
}

func (r *recorder) list() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string{}, r.entries...)
}

func TestRunPrerequisiteBeforeAction(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(&Task{Name: "A", Action: rec.action("A ran")})
	reg.Register(&Task{Name: "B", Deps: []string{"A"}, Action: rec.action("B ran")})

	err := NewRunner(reg).Run(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"A ran", "B ran"}, rec.list())
}

func TestRunPrerequisiteFailureSkipsAction(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(&Task{Name: "A", Action: Func(func() error { return errors.New("boom") })})
	reg.Register(&Task{Name: "B", Deps: []string{"A"}, Action: rec.action("B ran")})

	err := NewRunner(reg).Run(context.Background(), "B")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Empty(t, rec.list())

	var prereqErr *PrerequisiteFailureError
	require.True(t, errors.As(err, &prereqErr))
	assert.Equal(t, "B", prereqErr.Task)
	assert.Equal(t, "A", prereqErr.Prerequisite)

	var actionErr *ActionFailureError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, "A", actionErr.Task)
	assert.EqualError(t, actionErr.Err, "boom")
}

func TestRunUnknownTask(t *testing.T) {
	err := NewRunner(NewRegistry()).Run(context.Background(), "nonexistent")

	var unknown *UnknownTaskError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "nonexistent", unknown.Name)
	assert.Empty(t, unknown.ReferencedBy)
}

func TestRunUnknownPrerequisiteFailsBeforeAnyAction(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(&Task{Name: "A", Action: rec.action("A ran")})
	reg.Register(&Task{Name: "B", Deps: []string{"A", "missing"}, Action: rec.action("B ran")})

	err := NewRunner(reg).Run(context.Background(), "B")

	var unknown *UnknownTaskError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "missing", unknown.Name)
	assert.Equal(t, "B", unknown.ReferencedBy)
	assert.Empty(t, rec.list())
}

func TestRunStepsInOrder(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(&Task{Name: "S1", Action: rec.action("S1")})
	reg.Register(&Task{Name: "S2", Action: rec.action("S2")})
	reg.Register(&Task{Name: "S3", Action: rec.action("S3")})
	reg.Register(&Task{Name: "main", Action: rec.action("main"), Steps: []string{"S1", "S2", "S3"}})

	require.NoError(t, NewRunner(reg).Run(context.Background(), "main"))
	assert.Equal(t, []string{"main", "S1", "S2", "S3"}, rec.list())
}

func TestRunStepFailureAbortsSequence(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(&Task{Name: "S1", Action: Func(func() error {
		rec.record("S1")
		return errors.New("S1 broke")
	})})
	reg.Register(&Task{Name: "S2", Action: rec.action("S2")})
	reg.Register(&Task{Name: "S3", Action: rec.action("S3")})
	reg.Register(&Task{Name: "main", Steps: []string{"S1", "S2", "S3"}})

	err := NewRunner(reg).Run(context.Background(), "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S1 broke")
	assert.Equal(t, []string{"S1"}, rec.list())
}

func TestRunStepsSkippedWhenActionFails(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(&Task{Name: "S1", Action: rec.action("S1")})
	reg.Register(&Task{
		Name:   "main",
		Action: Func(func() error { return errors.New("nope") }),
		Steps:  []string{"S1"},
	})

	err := NewRunner(reg).Run(context.Background(), "main")
	var actionErr *ActionFailureError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, "main", actionErr.Task)
	assert.Empty(t, rec.list())
}

func TestRunAliasTask(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(&Task{Name: "build:app", Action: rec.action("build")})
	reg.Register(&Task{Name: "app", Deps: []string{"build:app"}})
	reg.Register(&Task{Name: "default", Deps: []string{"app"}})

	require.NoError(t, NewRunner(reg).Run(context.Background(), "default"))
	assert.Equal(t, []string{"build"}, rec.list())
}

func TestRunDiamondRunsSharedTaskOnce(t *testing.T) {
	var count int32
	reg := NewRegistry()
	reg.Register(&Task{Name: "base", Action: Func(func() error {
		atomic.AddInt32(&count, 1)
		return nil
	})})
	reg.Register(&Task{Name: "left", Deps: []string{"base"}})
	reg.Register(&Task{Name: "right", Deps: []string{"base"}})
	reg.Register(&Task{Name: "top", Deps: []string{"left", "right"}, Steps: []string{"base"}})

	for _, parallel := range []bool{true, false} {
		atomic.StoreInt32(&count, 0)
		err := NewRunner(reg, WithParallelDeps(parallel)).Run(context.Background(), "top")
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&count))
	}
}

func TestRunTwiceRunsTasksAgain(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(&Task{Name: "clean", Action: rec.action("clean")})

	runner := NewRunner(reg)
	require.NoError(t, runner.Run(context.Background(), "clean"))
	require.NoError(t, runner.Run(context.Background(), "clean"))
	assert.Equal(t, []string{"clean", "clean"}, rec.list())
}

func TestRunParallelDepsOverlap(t *testing.T) {
	var running, peak int32
	track := Func(func() error {
		now := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	})

	reg := NewRegistry()
	reg.Register(&Task{Name: "a", Action: track})
	reg.Register(&Task{Name: "b", Action: track})
	reg.Register(&Task{Name: "c", Action: track})
	reg.Register(&Task{Name: "all", Deps: []string{"a", "b", "c"}})

	require.NoError(t, NewRunner(reg).Run(context.Background(), "all"))
	assert.Greater(t, atomic.LoadInt32(&peak), int32(1))

	atomic.StoreInt32(&peak, 0)
	require.NoError(t, NewRunner(reg, WithParallelDeps(false)).Run(context.Background(), "all"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestRunSequentialDepsKeepOrder(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(&Task{Name: "clean:dist", Action: rec.action("clean:dist")})
	reg.Register(&Task{Name: "clean:src", Action: rec.action("clean:src")})
	reg.Register(&Task{Name: "build", Deps: []string{"clean:dist", "clean:src"}, Action: rec.action("build")})

	require.NoError(t, NewRunner(reg, WithParallelDeps(false)).Run(context.Background(), "build"))
	assert.Equal(t, []string{"clean:dist", "clean:src", "build"}, rec.list())
}

func TestRunParallelFailureCancelsSiblings(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(&Task{Name: "slow", Action: ActionFunc(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			rec.record("slow cancelled")
			return ctx.Err()
		case <-time.After(5 * time.Second):
			rec.record("slow finished")
			return nil
		}
	})})
	reg.Register(&Task{Name: "fail", Action: Func(func() error {
		time.Sleep(50 * time.Millisecond)
		return errors.New("boom")
	})})
	reg.Register(&Task{Name: "top", Deps: []string{"slow", "fail"}, Action: rec.action("top")})

	err := NewRunner(reg).Run(context.Background(), "top")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	var prereqErr *PrerequisiteFailureError
	require.True(t, errors.As(err, &prereqErr))
	assert.Equal(t, "fail", prereqErr.Prerequisite)
	assert.Equal(t, []string{"slow cancelled"}, rec.list())
}

func TestRunPanickingPrerequisite(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(&Task{Name: "ok", Action: rec.action("ok")})
	reg.Register(&Task{Name: "crash", Action: Func(func() error {
		panic("kaboom")
	})})
	reg.Register(&Task{Name: "top", Deps: []string{"ok", "crash"}, Action: rec.action("top")})

	err := NewRunner(reg).Run(context.Background(), "top")
	require.Error(t, err)

	var actionErr *ActionFailureError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, "crash", actionErr.Task)

	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "kaboom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
	assert.NotContains(t, rec.list(), "top")
}

func TestRunCycle(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(&Task{Name: "a", Deps: []string{"b"}, Action: rec.action("a")})
	reg.Register(&Task{Name: "b", Deps: []string{"c"}, Action: rec.action("b")})
	reg.Register(&Task{Name: "c", Steps: []string{"a"}, Action: rec.action("c")})

	err := NewRunner(reg).Run(context.Background(), "a")

	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{"a", "b", "c", "a"}, cycle.Path)
	assert.Empty(t, rec.list())
}

func TestRunCancelledContext(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register(&Task{Name: "a", Action: rec.action("a")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewRunner(reg).Run(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.list())
}

type observerFunc struct {
	lock   sync.Mutex
	events []string
}

func (o *observerFunc) TaskStarted(name string) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.events = append(o.events, "start "+name)
}

func (o *observerFunc) TaskFinished(name string, err error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if err != nil {
		o.events = append(o.events, "fail "+name)
	} else {
		o.events = append(o.events, "done "+name)
	}
}

func TestRunObserver(t *testing.T) {
	obs := &observerFunc{}
	reg := NewRegistry()
	reg.Register(&Task{Name: "a", Action: Noop})
	reg.Register(&Task{Name: "b", Deps: []string{"a"}, Action: Func(func() error { return errors.New("x") })})
	reg.Register(&Task{Name: "alias", Deps: []string{"b"}})

	err := NewRunner(reg, WithObserver(obs)).Run(context.Background(), "alias")
	require.Error(t, err)
	assert.Equal(t, []string{"start a", "done a", "start b", "fail b"}, obs.events)
}
