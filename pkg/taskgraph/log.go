package taskgraph

import (
	"context"

	"github.com/rs/zerolog"
)

type (
	logKey    struct{}
	dryRunKey struct{}
)

var nopLogger = zerolog.Nop()

// Log returns the logger attached to ctx or a disabled logger if there is none.
func Log(ctx context.Context) *zerolog.Logger {
	logger := ctx.Value(logKey{})
	if logger == nil {
		return &nopLogger
	}

	return logger.(*zerolog.Logger)
}

// WithLogger attaches the given logger to the context
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, logKey{}, logger)
}

// WithDryRun marks the context so that actions only report what they would do.
func WithDryRun(ctx context.Context, dryRun bool) context.Context {
	return context.WithValue(ctx, dryRunKey{}, dryRun)
}

// IsDryRun reports whether WithDryRun(ctx, true) was applied.
func IsDryRun(ctx context.Context) bool {
	dryRun, _ := ctx.Value(dryRunKey{}).(bool)
	return dryRun
}
