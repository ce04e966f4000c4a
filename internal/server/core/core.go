// Package core assembles the panel's backend: app state store, script
// registry, stream hub, scheduler, and optional config watching, behind one
// facade the rendering layer talks to. The rendering layer never touches the
// internals directly; everything flows through these methods.
package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gymbridge/gymbridge/internal/appstate"
	"github.com/gymbridge/gymbridge/internal/config"
	"github.com/gymbridge/gymbridge/internal/scripts/registry"
	"github.com/gymbridge/gymbridge/internal/scripts/runner"
	"github.com/gymbridge/gymbridge/internal/scripts/stream"
	"github.com/gymbridge/gymbridge/internal/server/runnables/cfgwatch"
	"github.com/gymbridge/gymbridge/internal/server/runnables/scheduler"
	"github.com/robbyt/go-supervisor/supervisor"
)

// Core wires the panel backend together.
type Core struct {
	logger    *slog.Logger
	store     *appstate.Store
	hub       *stream.Hub
	scheduler *scheduler.Runner
	watcher   *cfgwatch.Runner

	parentCtx context.Context
	cfg       *config.Config
}

// New builds the backend from a loaded config. Widget defaults are seeded
// into the app state store immediately so the first snapshot a script sees is
// already complete.
func New(cfg *config.Config, opts ...Option) (*Core, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Core{
		logger:    slog.Default().WithGroup("core"),
		parentCtx: context.Background(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.store = appstate.NewStore()
	c.hub = stream.NewHub(c.logger)
	c.seedWidgets(cfg)

	reg, err := registry.New(cfg.Scripts, cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("failed to build script registry: %w", err)
	}

	launcher := runner.New(
		cfg.Runtime.Interpreter,
		runner.WithGrace(cfg.Runtime.StreamGrace.AsDuration()),
		runner.WithLogger(c.logger.WithGroup("runner")),
	)

	sched, err := scheduler.NewRunner(reg, c.store, c.hub, launcher,
		scheduler.WithLogger(c.logger.WithGroup("scheduler")),
		scheduler.WithParentContext(c.parentCtx),
		scheduler.WithRestartPolicy(
			cfg.Runtime.RestartBackoff.AsDuration(),
			cfg.Runtime.MaxRestartAttempts,
			0,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build scheduler: %w", err)
	}
	c.scheduler = sched

	return c, nil
}

// WatchConfig attaches a live config watcher for the given file. Each valid
// save re-reads the config, swaps the script registry, and seeds any new
// widget keys. Call before the runnables are started.
func (c *Core) WatchConfig(path string) error {
	watcher, err := cfgwatch.NewRunner(path, c.cfg,
		cfgwatch.WithLogger(c.logger.WithGroup("cfgwatch")),
		cfgwatch.WithParentContext(c.parentCtx),
	)
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	c.watcher = watcher

	updates := watcher.GetConfigChan()
	go func() {
		for {
			select {
			case <-c.parentCtx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				if cfg == c.cfg {
					// The initial config, replayed on subscribe.
					continue
				}
				c.applyConfig(cfg)
			}
		}
	}()
	return nil
}

// Runnables returns the long-running components for the supervisor, in start
// order.
func (c *Core) Runnables() []supervisor.Runnable {
	runnables := []supervisor.Runnable{}
	if c.watcher != nil {
		runnables = append(runnables, c.watcher)
	}
	runnables = append(runnables, c.scheduler)
	return runnables
}

// applyConfig swaps in a freshly validated config: new registry for future
// triggers, new widget keys seeded. Running invocations are not disturbed,
// and existing widget values are never clobbered.
func (c *Core) applyConfig(cfg *config.Config) {
	reg, err := registry.New(cfg.Scripts, cfg.Runtime)
	if err != nil {
		c.logger.Error("rejecting reloaded config, keeping previous registry", "error", err)
		return
	}

	c.scheduler.ReloadRegistry(reg)
	c.seedWidgets(cfg)
	c.cfg = cfg
	c.logger.Info("config applied", "scripts", len(cfg.Scripts))
}

// seedWidgets writes each widget's default under its id, without overwriting
// values the operator has already changed.
func (c *Core) seedWidgets(cfg *config.Config) {
	for _, s := range cfg.Layout.Sliders {
		c.store.SetDefault(s.ID, s.Default)
	}
	for _, f := range cfg.Layout.InputFields {
		c.store.SetDefault(f.ID, "")
	}
}
