package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// DueRebuilder rebuilds every hunt that is due.
type DueRebuilder interface {
	RebuildDue(ctx context.Context, now time.Time) ([]domain.RebuildSummary, error)
}

// MatchRunner rebuilds due hunts on a schedule.
type MatchRunner struct {
	hunts  DueRebuilder
	logger *slog.Logger
	now    func() time.Time
}

// NewMatchRunner creates a MatchRunner.
func NewMatchRunner(hunts DueRebuilder, logger *slog.Logger) *MatchRunner {
	return &MatchRunner{
		hunts:  hunts,
		logger: logger.With(slog.String("component", "match_runner")),
		now:    time.Now,
	}
}

// Run performs one pass over due hunts.
func (r *MatchRunner) Run(ctx context.Context) error {
	sums, err := r.hunts.RebuildDue(ctx, r.now().UTC())
	if len(sums) > 0 {
		alerts := 0
		for _, s := range sums {
			alerts += s.Alerts
		}
		r.logger.InfoContext(ctx, "due hunts rebuilt",
			slog.Int("hunts", len(sums)),
			slog.Int("alerts", alerts),
		)
	}
	return err
}

// RunLoop runs a pass immediately and then every interval.
func (r *MatchRunner) RunLoop(ctx context.Context, interval time.Duration) error {
	return runEvery(ctx, interval, nil, r.logger, r.Run)
}
