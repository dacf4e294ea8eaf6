package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// CrawlRunStore implements domain.CrawlRunStore using PostgreSQL.
type CrawlRunStore struct {
	pool *pgxpool.Pool
}

// NewCrawlRunStore creates a new CrawlRunStore backed by the given pool.
func NewCrawlRunStore(pool *pgxpool.Pool) *CrawlRunStore {
	return &CrawlRunStore{pool: pool}
}

// CommitRun writes the crawl run record, every planned listing upsert and
// every presence event in one transaction. The run row is inserted first so
// a re-delivered run id aborts before touching any listing.
func (s *CrawlRunStore) CommitRun(ctx context.Context, plan domain.RunPlan) error {
	r := plan.Run
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO crawl_runs (
				id, source, started_at, finished_at, outcome,
				seen, new, returned, went_missing, delisted, dropped
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING`,
			r.ID, r.Source, r.StartedAt, r.FinishedAt, string(r.Outcome),
			r.Seen, r.New, r.Returned, r.WentMissing, r.Delisted, r.Dropped,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrRunAlreadyApplied
		}

		batch := &pgx.Batch{}
		for _, l := range plan.Listings {
			queueListingUpsert(batch, l)
		}
		for _, e := range plan.Events {
			batch.Queue(`
				INSERT INTO presence_events (listing_id, run_id, event_type, occurred_at)
				SELECT id, $3, $4, $5 FROM listings
				WHERE source = $1 AND source_listing_id = $2`,
				e.ListingKey.Source, e.ListingKey.SourceListingID, e.RunID, string(e.Type), e.OccurredAt,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		br := tx.SendBatch(ctx, batch)
		for i := range batch.Len() {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("batch item %d: %w", i, err)
			}
		}
		return br.Close()
	})
	if err != nil {
		if errors.Is(err, domain.ErrRunAlreadyApplied) {
			return err
		}
		return fmt.Errorf("postgres: commit crawl run %s: %w", r.ID, err)
	}
	return nil
}

// ListRecent returns the latest runs of a source, newest first. An empty
// source lists every source.
func (s *CrawlRunStore) ListRecent(ctx context.Context, source string, limit int) ([]domain.CrawlRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, started_at, finished_at, outcome,
		       seen, new, returned, went_missing, delisted, dropped
		FROM crawl_runs
		WHERE $1 = '' OR source = $1
		ORDER BY finished_at DESC
		LIMIT $2`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list crawl runs: %w", err)
	}
	defer rows.Close()

	var out []domain.CrawlRun
	for rows.Next() {
		var r domain.CrawlRun
		var outcome string
		if err := rows.Scan(&r.ID, &r.Source, &r.StartedAt, &r.FinishedAt, &outcome,
			&r.Seen, &r.New, &r.Returned, &r.WentMissing, &r.Delisted, &r.Dropped); err != nil {
			return nil, fmt.Errorf("postgres: scan crawl run: %w", err)
		}
		r.Outcome = domain.RunOutcome(outcome)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: crawl run rows: %w", err)
	}
	return out, nil
}

var _ domain.CrawlRunStore = (*CrawlRunStore)(nil)
