package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Option represents a functional option for configuring Runner.
type Option func(*Runner)

// WithLogHandler sets a custom slog handler for the Runner instance.
func WithLogHandler(handler slog.Handler) Option {
	return func(r *Runner) {
		if handler != nil {
			r.logger = slog.New(handler).WithGroup("scheduler.Runner")
		}
	}
}

// WithLogger sets a logger for the Runner instance.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithParentContext sets a parent context whose cancellation also shuts the
// scheduler down.
func WithParentContext(ctx context.Context) Option {
	return func(r *Runner) {
		if ctx != nil {
			r.parentCtx = ctx
		}
	}
}

// WithRestartPolicy tunes streaming restart behavior. Zero values keep the
// corresponding default.
func WithRestartPolicy(base time.Duration, maxAttempts int, stabilityWindow time.Duration) Option {
	return func(r *Runner) {
		if base > 0 {
			r.policy.base = base
		}
		if maxAttempts > 0 {
			r.policy.maxAttempts = maxAttempts
		}
		if stabilityWindow > 0 {
			r.policy.stabilityWindow = stabilityWindow
		}
	}
}
