package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a new ListingStore backed by the given pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

const listingColumns = `
	l.id, l.source, l.source_listing_id, l.url,
	l.make, l.model, l.variant, l.drivetrain, l.year, l.km,
	l.asking_price, l.location, l.event_key, l.identity_partial,
	l.first_seen_at, l.last_seen_at, l.status, l.missing_streak,
	l.lifecycle_status, l.lifecycle_checked_at, l.lifecycle_reason`

// ListBySource implements domain.ListingStore.
func (s *ListingStore) ListBySource(ctx context.Context, source string) ([]domain.ListingRecord, error) {
	query := `SELECT ` + listingColumns + ` FROM listings l WHERE l.source = $1 ORDER BY l.id`
	rows, err := s.pool.Query(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings for %s: %w", source, err)
	}
	return collectListings(rows)
}

// ListVisible implements domain.ListingStore.
func (s *ListingStore) ListVisible(ctx context.Context, q domain.ListingQuery) ([]domain.ListingRecord, error) {
	where, args := visibleFilter(q)
	query := `SELECT ` + listingColumns + `
		FROM listings l
		WHERE ` + where + `
		ORDER BY l.asking_price ASC NULLS LAST, l.first_seen_at ASC, l.id ASC`
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list visible listings %s %s: %w", q.Make, q.Model, err)
	}
	return collectListings(rows)
}

// visibleFilter builds the WHERE clause of ListVisible. An empty model or
// source list matches any.
func visibleFilter(q domain.ListingQuery) (string, []any) {
	conds := []string{"l.status IN ('active', 'missing_pending')", "l.make = $1"}
	args := []any{q.Make}
	if q.Model != "" {
		args = append(args, q.Model)
		conds = append(conds, fmt.Sprintf("l.model = $%d", len(args)))
	}
	if len(q.Sources) > 0 {
		args = append(args, q.Sources)
		conds = append(conds, fmt.Sprintf("l.source = ANY($%d)", len(args)))
	}
	return strings.Join(conds, " AND "), args
}

// GetByID implements domain.ListingStore.
func (s *ListingStore) GetByID(ctx context.Context, id int64) (domain.ListingRecord, error) {
	query := `SELECT ` + listingColumns + ` FROM listings l WHERE l.id = $1`
	l, err := scanListing(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ListingRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ListingRecord{}, fmt.Errorf("postgres: get listing %d: %w", id, err)
	}
	return l, nil
}

func collectListings(rows pgx.Rows) ([]domain.ListingRecord, error) {
	defer rows.Close()
	var out []domain.ListingRecord
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: listing rows: %w", err)
	}
	return out, nil
}

func scanListing(row pgx.Row) (domain.ListingRecord, error) {
	return scanListingAfter(row)
}

// scanListingAfter scans listingColumns preceded by the prefix destinations.
func scanListingAfter(row pgx.Row, prefix ...any) (domain.ListingRecord, error) {
	var l domain.ListingRecord
	var drive, status, lifecycle string
	dest := append(prefix,
		&l.ID, &l.Source, &l.SourceListingID, &l.URL,
		&l.Identity.Make, &l.Identity.Model, &l.Identity.Variant, &drive, &l.Identity.Year, &l.Identity.Km,
		&l.AskingPrice, &l.Location, &l.EventKey, &l.IdentityPartial,
		&l.FirstSeenAt, &l.LastSeenAt, &status, &l.MissingStreak,
		&lifecycle, &l.LifecycleCheckedAt, &l.LifecycleReason,
	)
	if err := row.Scan(dest...); err != nil {
		return domain.ListingRecord{}, err
	}
	l.Identity.Drivetrain = domain.Drivetrain(drive)
	l.Status = domain.ListingStatus(status)
	l.LifecycleStatus = domain.LifecycleStatus(lifecycle)
	return l, nil
}

// statusOnUpsert keeps a delist the verifier made after confirming the
// listing sold or expired. Presence plans are built from a snapshot read
// before the commit, so a run could otherwise revive such a listing.
const statusOnUpsert = `CASE
			WHEN listings.status = 'delisted' AND listings.lifecycle_status IN ('sold', 'expired')
			THEN listings.status
			ELSE EXCLUDED.status
		END`

const upsertListing = `
	INSERT INTO listings (
		source, source_listing_id, url,
		make, model, variant, drivetrain, year, km,
		asking_price, location, event_key, identity_partial,
		first_seen_at, last_seen_at, status, missing_streak
	) VALUES (
		$1, $2, $3,
		$4, $5, $6, $7, $8, $9,
		$10, $11, $12, $13,
		$14, $15, $16, $17
	)
	ON CONFLICT (source, source_listing_id) DO UPDATE SET
		url              = EXCLUDED.url,
		make             = EXCLUDED.make,
		model            = EXCLUDED.model,
		variant          = EXCLUDED.variant,
		drivetrain       = EXCLUDED.drivetrain,
		year             = EXCLUDED.year,
		km               = EXCLUDED.km,
		asking_price     = EXCLUDED.asking_price,
		location         = EXCLUDED.location,
		event_key        = EXCLUDED.event_key,
		identity_partial = EXCLUDED.identity_partial,
		last_seen_at     = EXCLUDED.last_seen_at,
		status           = ` + statusOnUpsert + `,
		missing_streak   = EXCLUDED.missing_streak,
		updated_at       = NOW()`

func queueListingUpsert(b *pgx.Batch, l domain.ListingRecord) {
	id := l.Identity
	b.Queue(upsertListing,
		l.Source, l.SourceListingID, l.URL,
		id.Make, id.Model, id.Variant, string(id.Drivetrain), id.Year, id.Km,
		l.AskingPrice, l.Location, l.EventKey, l.IdentityPartial,
		l.FirstSeenAt, l.LastSeenAt, string(l.Status), l.MissingStreak,
	)
}

var _ domain.ListingStore = (*ListingStore)(nil)
