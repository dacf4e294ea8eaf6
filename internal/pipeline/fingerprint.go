package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// FingerprintRefresher rebuilds winner fingerprints for every account.
type FingerprintRefresher interface {
	Refresh(ctx context.Context) (map[string]int, error)
}

// FingerprintRunner refreshes fingerprints on a cron schedule.
type FingerprintRunner struct {
	svc    FingerprintRefresher
	logger *slog.Logger
	now    func() time.Time
}

// NewFingerprintRunner creates a FingerprintRunner.
func NewFingerprintRunner(svc FingerprintRefresher, logger *slog.Logger) *FingerprintRunner {
	return &FingerprintRunner{
		svc:    svc,
		logger: logger.With(slog.String("component", "fingerprint_runner")),
		now:    time.Now,
	}
}

// Run refreshes once.
func (r *FingerprintRunner) Run(ctx context.Context) error {
	counts, err := r.svc.Refresh(ctx)
	if err != nil {
		return err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	r.logger.InfoContext(ctx, "fingerprints refreshed",
		slog.Int("accounts", len(counts)),
		slog.Int("fingerprints", total),
	)
	return nil
}

// RunCron refreshes once at startup and then on every cron match until ctx
// is cancelled.
func (r *FingerprintRunner) RunCron(ctx context.Context, expr string) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return err
	}
	r.logger.Info("fingerprint cron started", slog.String("cron", sched.String()))

	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		r.logger.ErrorContext(ctx, "fingerprint refresh failed", slog.String("error", err.Error()))
	}
	for {
		next, ok := sched.Next(r.now().UTC())
		if !ok {
			return fmt.Errorf("pipeline: cron %q never fires", expr)
		}
		wait := time.Until(next)
		r.logger.Debug("fingerprint refresh scheduled",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("fingerprint cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := r.Run(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "fingerprint refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}
