// Package server assembles and runs the panel backend process: load the
// config, build the core, and hand the runnables to the supervisor.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gymbridge/gymbridge/internal/config"
	"github.com/gymbridge/gymbridge/internal/logging"
	"github.com/gymbridge/gymbridge/internal/server/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robbyt/go-supervisor/supervisor"
)

// Options configures one backend process. An empty LogLevel or LogFormat
// defers to the config file's [logging] section.
type Options struct {
	ConfigPath    string
	LogLevel      string
	LogFormat     string
	MetricsListen string
	WatchConfig   bool
}

// resolveLogging picks the effective log level and format: an explicit CLI
// flag wins, otherwise the config's [logging] section applies.
func resolveLogging(opts Options, cfg *config.Config) (level, format string) {
	level, format = opts.LogLevel, opts.LogFormat
	if level == "" {
		level = cfg.Logging.Level
	}
	if format == "" {
		format = cfg.Logging.Format
	}
	return level, format
}

// Run starts the backend and blocks until the context is canceled or a fatal
// error occurs.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.NewConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logging.SetupLogger(resolveLogging(opts, cfg))
	logger := slog.Default()
	logHandler := logger.Handler()

	logger.Info("config loaded",
		"path", opts.ConfigPath,
		"title", cfg.Layout.Title,
		"scripts", len(cfg.Scripts),
	)

	c, err := core.New(cfg,
		core.WithLogHandler(logHandler),
		core.WithParentContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to build core: %w", err)
	}

	if opts.WatchConfig {
		if err := c.WatchConfig(opts.ConfigPath); err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
	}

	if opts.MetricsListen != "" {
		serveMetrics(ctx, logger, opts.MetricsListen)
	}

	super, err := supervisor.New(
		supervisor.WithContext(ctx),
		supervisor.WithLogHandler(logHandler),
		supervisor.WithRunnables(c.Runnables()...),
	)
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}
	if err := super.Run(); err != nil {
		return fmt.Errorf("failed to run backend: %w", err)
	}

	logger.Info("Backend shutdown complete")
	return nil
}

// serveMetrics exposes the Prometheus registry on addr until ctx ends.
func serveMetrics(ctx context.Context, logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("metrics listener starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
