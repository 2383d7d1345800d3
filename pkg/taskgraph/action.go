package taskgraph

import (
	"context"
	"sync"
)

// Action is the single completion contract every task action is reduced to: Run returns
// once the work is done, with nil on success.
type Action interface {
	Run(ctx context.Context) error
}

// ActionFunc adapts a synchronous function to the Action interface.
type ActionFunc func(ctx context.Context) error

// Run calls f(ctx)
func (f ActionFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Func wraps a synchronous function that doesn't care about the context.
func Func(fn func() error) Action {
	return ActionFunc(func(context.Context) error {
		return fn()
	})
}

// Callback wraps an action that reports completion by calling done. Only the first call to
// done counts; later calls are ignored. If ctx is cancelled before done is called, Run
// returns ctx.Err() and the late result is dropped.
func Callback(fn func(ctx context.Context, done func(error))) Action {
	return ActionFunc(func(ctx context.Context) error {
		result := make(chan error, 1)
		var once sync.Once

		fn(ctx, func(err error) {
			once.Do(func() {
				result <- err
			})
		})

		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// Async wraps an action that returns a future. The future resolves with the first value
// received from the channel; a channel that is closed without a value counts as success.
func Async(fn func(ctx context.Context) <-chan error) Action {
	return ActionFunc(func(ctx context.Context) error {
		future := fn(ctx)
		if future == nil {
			return nil
		}

		select {
		case err := <-future:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

type noop struct{}

func (noop) Run(context.Context) error { return nil }

// Noop is an action that succeeds immediately.
var Noop Action = noop{}
