// Package pipeline runs the engine's scheduled work: due-hunt rebuilds,
// verification batches, fingerprint refreshes and crawl-run ingestion.
package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// runEvery calls fn immediately, then on every tick and every trigger until
// ctx is done. fn errors are logged and never stop the loop.
func runEvery(ctx context.Context, interval time.Duration, trigger <-chan struct{}, logger *slog.Logger, fn func(context.Context) error) error {
	run := func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorContext(ctx, "run failed", slog.String("error", err.Error()))
		}
	}
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("loop stopped")
			return ctx.Err()
		case <-ticker.C:
			run()
		case <-trigger:
			run()
		}
	}
}
