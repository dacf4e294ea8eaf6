package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// PresenceEventStore implements domain.PresenceEventStore using PostgreSQL.
type PresenceEventStore struct {
	pool *pgxpool.Pool
}

// NewPresenceEventStore creates a new PresenceEventStore.
func NewPresenceEventStore(pool *pgxpool.Pool) *PresenceEventStore {
	return &PresenceEventStore{pool: pool}
}

// ListByListing returns a listing's presence events in occurrence order.
func (s *PresenceEventStore) ListByListing(ctx context.Context, key domain.ListingKey) ([]domain.PresenceEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.run_id, e.event_type, e.occurred_at
		FROM presence_events e
		JOIN listings l ON l.id = e.listing_id
		WHERE l.source = $1 AND l.source_listing_id = $2
		ORDER BY e.occurred_at, e.id`, key.Source, key.SourceListingID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list presence events: %w", err)
	}
	defer rows.Close()

	var out []domain.PresenceEvent
	for rows.Next() {
		e := domain.PresenceEvent{ListingKey: key}
		var typ string
		if err := rows.Scan(&e.RunID, &typ, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("postgres: scan presence event: %w", err)
		}
		e.Type = domain.PresenceEventType(typ)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: presence event rows: %w", err)
	}
	return out, nil
}

var _ domain.PresenceEventStore = (*PresenceEventStore)(nil)
