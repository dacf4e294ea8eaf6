package postgres

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// LifecycleStore implements domain.LifecycleStore using PostgreSQL.
type LifecycleStore struct {
	pool *pgxpool.Pool
	// lease is how long a claimed listing stays hidden from other claims
	// when its result is never saved.
	lease time.Duration
}

// NewLifecycleStore creates a new LifecycleStore.
func NewLifecycleStore(pool *pgxpool.Pool, lease time.Duration) *LifecycleStore {
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	return &LifecycleStore{pool: pool, lease: lease}
}

// ClaimBatch leases up to limit visible listings that sit in an actionable
// candidate set, never-checked first, then by oldest check. Rows locked by
// a concurrent claim are skipped.
func (s *LifecycleStore) ClaimBatch(ctx context.Context, limit int) ([]domain.VerificationTarget, error) {
	rows, err := s.pool.Query(ctx, `
		WITH due AS (
			SELECT l.id
			FROM listings l
			WHERE l.status IN ('active', 'missing_pending')
			  AND l.url <> ''
			  AND (l.lifecycle_claimed_at IS NULL OR l.lifecycle_claimed_at < NOW() - $2 * INTERVAL '1 second')
			  AND EXISTS (
			      SELECT 1 FROM match_candidates c
			      WHERE c.listing_id = l.id AND c.decision <> 'IGNORE')
			ORDER BY l.lifecycle_checked_at ASC NULLS FIRST, l.id
			LIMIT $1
			FOR UPDATE OF l SKIP LOCKED
		)
		UPDATE listings l SET lifecycle_claimed_at = NOW()
		FROM due
		WHERE l.id = due.id
		RETURNING l.id, l.source, l.url, l.lifecycle_status, l.lifecycle_checked_at`,
		limit, int(s.lease.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("postgres: claim verification batch: %w", err)
	}
	defer rows.Close()

	var out []domain.VerificationTarget
	for rows.Next() {
		var t domain.VerificationTarget
		var status string
		if err := rows.Scan(&t.ListingID, &t.Source, &t.URL, &status, &t.CheckedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan verification target: %w", err)
		}
		t.CurrentStatus = domain.LifecycleStatus(status)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: verification target rows: %w", err)
	}
	// UPDATE ... RETURNING does not preserve the CTE order.
	sortTargets(out)
	return out, nil
}

// SaveResult records a check. Ambiguous results only touch the check
// bookkeeping and never the lifecycle status. Confirmed sold or expired
// listings are delisted.
func (s *LifecycleStore) SaveResult(ctx context.Context, res domain.LifecycleCheckResult) error {
	var httpStatus *int
	if res.HTTPStatus != 0 {
		httpStatus = &res.HTTPStatus
	}
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`
			INSERT INTO lifecycle_checks (listing_id, status, http_status, reason, error, ambiguous, attempts, checked_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			res.ListingID, string(res.Status), httpStatus, res.Reason, res.Error, res.Ambiguous, res.Attempts, res.CheckedAt)
		if res.Ambiguous {
			batch.Queue(`
				UPDATE listings SET
					lifecycle_checked_at  = $2,
					lifecycle_reason      = $3,
					lifecycle_error       = $4,
					lifecycle_http_status = $5,
					lifecycle_claimed_at  = NULL
				WHERE id = $1`,
				res.ListingID, res.CheckedAt, res.Reason, res.Error, httpStatus)
		} else {
			batch.Queue(`
				UPDATE listings SET
					lifecycle_status      = $2,
					lifecycle_checked_at  = $3,
					lifecycle_reason      = $4,
					lifecycle_error       = '',
					lifecycle_http_status = $5,
					lifecycle_claimed_at  = NULL,
					status = CASE WHEN $2 IN ('sold', 'expired') THEN 'delisted' ELSE status END,
					updated_at = NOW()
				WHERE id = $1`,
				res.ListingID, string(res.Status), res.CheckedAt, res.Reason, httpStatus)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres: save lifecycle result for %d: %w", res.ListingID, err)
	}
	return nil
}

func sortTargets(ts []domain.VerificationTarget) {
	slices.SortFunc(ts, func(a, b domain.VerificationTarget) int {
		switch {
		case a.CheckedAt == nil && b.CheckedAt != nil:
			return -1
		case a.CheckedAt != nil && b.CheckedAt == nil:
			return 1
		case a.CheckedAt != nil:
			if c := a.CheckedAt.Compare(*b.CheckedAt); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ListingID, b.ListingID)
	})
}

var _ domain.LifecycleStore = (*LifecycleStore)(nil)
