// Package app provides the top-level application lifecycle. It wires the
// stores, caches, archive, services and loops together and runs the ones the
// configured mode needs.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/carbitrage/internal/config"
	"github.com/alanyoungcy/carbitrage/internal/pipeline"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run wires all dependencies, starts the configured mode's tasks, and blocks
// until the context is cancelled or a task fails. Cancellation is a clean
// shutdown and returns nil.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "starting application",
		slog.String("component", "app"),
		slog.String("mode", mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	tasks := a.tasks(mode, deps)
	if len(tasks) == 0 {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
	return pipeline.NewOrchestrator(a.logger, tasks...).Run(ctx)
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application", slog.String("component", "app"))
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
