package core

import (
	"context"
	"log/slog"
)

// Option represents a functional option for configuring Core.
type Option func(*Core)

// WithLogHandler sets a custom slog handler for the Core instance.
func WithLogHandler(handler slog.Handler) Option {
	return func(c *Core) {
		if handler != nil {
			c.logger = slog.New(handler).WithGroup("core")
		}
	}
}

// WithLogger sets a logger for the Core instance.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithParentContext bounds the lifetime of the core's background work, like
// the config reload pump.
func WithParentContext(ctx context.Context) Option {
	return func(c *Core) {
		if ctx != nil {
			c.parentCtx = ctx
		}
	}
}
