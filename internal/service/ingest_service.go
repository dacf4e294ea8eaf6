package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/carbitrage/internal/domain"
	"github.com/alanyoungcy/carbitrage/internal/lifecycle"
	"github.com/alanyoungcy/carbitrage/internal/metrics"
	"github.com/alanyoungcy/carbitrage/internal/normalize"
)

// IngestService applies crawl runs: it normalizes raw records at the edge,
// plans presence transitions and commits each run atomically.
type IngestService struct {
	listings domain.ListingStore
	runs     domain.CrawlRunStore
	codes    domain.CodeTableCache
	locks    domain.LockManager
	archiver domain.Archiver
	tracker  *lifecycle.Tracker
	lockTTL  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewIngestService creates an IngestService. archiver may be nil.
func NewIngestService(
	listings domain.ListingStore,
	runs domain.CrawlRunStore,
	codes domain.CodeTableCache,
	locks domain.LockManager,
	archiver domain.Archiver,
	tracker *lifecycle.Tracker,
	lockTTL time.Duration,
	logger *slog.Logger,
) *IngestService {
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &IngestService{
		listings: listings,
		runs:     runs,
		codes:    codes,
		locks:    locks,
		archiver: archiver,
		tracker:  tracker,
		lockTTL:  lockTTL,
		logger:   logger.With(slog.String("component", "ingest_service")),
		now:      time.Now,
	}
}

// ApplyRun applies one crawl batch. A batch whose source is being applied
// elsewhere fails with domain.ErrLockHeld; a batch whose run id was already
// committed fails with domain.ErrRunAlreadyApplied and changes nothing.
func (s *IngestService) ApplyRun(ctx context.Context, batch domain.CrawlBatch) (domain.CrawlRun, error) {
	batch.Source = strings.TrimSpace(batch.Source)
	if batch.Source == "" {
		return domain.CrawlRun{}, fmt.Errorf("ingest_service: %w: source is required", domain.ErrInvalidBatch)
	}
	if batch.RunID == "" {
		batch.RunID = uuid.NewString()
	}
	if batch.FinishedAt.IsZero() && batch.StartedAt.IsZero() {
		batch.FinishedAt = s.now().UTC()
	}

	unlock, err := s.locks.Acquire(ctx, "ingest:"+batch.Source, s.lockTTL)
	if err != nil {
		return domain.CrawlRun{}, fmt.Errorf("ingest_service: lock source %s: %w", batch.Source, err)
	}
	defer unlock()

	codes, err := s.codes.Get(ctx)
	if err != nil {
		return domain.CrawlRun{}, fmt.Errorf("ingest_service: code table: %w", err)
	}

	run := domain.CrawlRun{
		ID:         batch.RunID,
		Source:     batch.Source,
		StartedAt:  batch.StartedAt,
		FinishedAt: batch.FinishedAt,
		Outcome:    domain.RunFailed,
	}
	if batch.OK {
		run.Outcome = domain.RunCompleted
	}
	seenAt := run.FinishedAt
	if seenAt.IsZero() {
		seenAt = run.StartedAt
	}

	n := normalize.New(codes)
	observed := make([]domain.ListingRecord, 0, len(batch.Records))
	for _, raw := range batch.Records {
		if raw.Source == "" {
			raw.Source = batch.Source
		}
		if raw.Source != batch.Source {
			run.Dropped++
			continue
		}
		rec, ok := n.Listing(raw, seenAt)
		if !ok {
			run.Dropped++
			continue
		}
		observed = append(observed, rec)
	}

	existing, err := s.listings.ListBySource(ctx, batch.Source)
	if err != nil {
		return domain.CrawlRun{}, fmt.Errorf("ingest_service: load listings: %w", err)
	}

	plan := s.tracker.Plan(run, existing, observed)
	if err := s.runs.CommitRun(ctx, plan); err != nil {
		if errors.Is(err, domain.ErrRunAlreadyApplied) {
			s.logger.InfoContext(ctx, "crawl run already applied",
				slog.String("run_id", run.ID),
				slog.String("source", run.Source),
			)
		}
		return domain.CrawlRun{}, fmt.Errorf("ingest_service: commit run %s: %w", run.ID, err)
	}

	metrics.CrawlRunsTotal.WithLabelValues(run.Source, string(run.Outcome)).Inc()
	if plan.Run.Dropped > 0 {
		metrics.RecordsDroppedTotal.WithLabelValues(run.Source).Add(float64(plan.Run.Dropped))
	}
	for _, ev := range plan.Events {
		metrics.PresenceEventsTotal.WithLabelValues(string(ev.Type)).Inc()
	}

	s.logger.InfoContext(ctx, "crawl run applied",
		slog.String("run_id", run.ID),
		slog.String("source", run.Source),
		slog.String("outcome", string(run.Outcome)),
		slog.Int("seen", plan.Run.Seen),
		slog.Int("new", plan.Run.New),
		slog.Int("returned", plan.Run.Returned),
		slog.Int("went_missing", plan.Run.WentMissing),
		slog.Int("delisted", plan.Run.Delisted),
		slog.Int("dropped", plan.Run.Dropped),
	)

	if s.archiver != nil {
		if path, err := s.archiver.ArchiveBatch(ctx, batch); err != nil {
			s.logger.WarnContext(ctx, "archive crawl batch failed",
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.DebugContext(ctx, "crawl batch archived", slog.String("path", path))
		}
	}
	return plan.Run, nil
}

// Replay re-applies an archived batch. Replaying a committed run is a
// no-op that reports domain.ErrRunAlreadyApplied.
func (s *IngestService) Replay(ctx context.Context, path string) (domain.CrawlRun, error) {
	if s.archiver == nil {
		return domain.CrawlRun{}, errors.New("ingest_service: replay: archive not configured")
	}
	batch, err := s.archiver.LoadBatch(ctx, path)
	if err != nil {
		return domain.CrawlRun{}, fmt.Errorf("ingest_service: replay %s: %w", path, err)
	}
	return s.ApplyRun(ctx, batch)
}

// ReplayAll re-applies every archived batch under prefix in path order.
// Runs that were already committed are counted and skipped. The first other
// failure stops the replay, since later runs depend on the presence state
// earlier ones leave behind.
func (s *IngestService) ReplayAll(ctx context.Context, prefix string) (domain.ReplaySummary, error) {
	sum := domain.ReplaySummary{Prefix: prefix, Applied: []string{}}
	if s.archiver == nil {
		return sum, errors.New("ingest_service: replay: archive not configured")
	}
	paths, err := s.archiver.ListBatches(ctx, prefix)
	if err != nil {
		return sum, fmt.Errorf("ingest_service: list %s: %w", prefix, err)
	}
	for _, path := range paths {
		_, err := s.Replay(ctx, path)
		switch {
		case err == nil:
			sum.Applied = append(sum.Applied, path)
		case errors.Is(err, domain.ErrRunAlreadyApplied):
			sum.AlreadyApplied++
		default:
			return sum, err
		}
	}
	s.logger.InfoContext(ctx, "replay complete",
		slog.String("prefix", prefix),
		slog.Int("applied", len(sum.Applied)),
		slog.Int("already_applied", sum.AlreadyApplied),
	)
	return sum, nil
}
