package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// HuntStore implements domain.HuntStore using PostgreSQL.
type HuntStore struct {
	pool *pgxpool.Pool
}

// NewHuntStore creates a new HuntStore.
func NewHuntStore(pool *pgxpool.Pool) *HuntStore {
	return &HuntStore{pool: pool}
}

const huntColumns = `
	id, account_id, make, model, variant_family, year_min, year_max, km_min, km_max,
	sources_enabled, scan_interval_seconds, last_scan_at, criteria_version, active`

func scanHunt(row pgx.Row) (domain.Hunt, error) {
	var h domain.Hunt
	var intervalSecs int
	err := row.Scan(&h.ID, &h.AccountID, &h.Make, &h.Model, &h.VariantFamily,
		&h.YearMin, &h.YearMax, &h.KmMin, &h.KmMax,
		&h.SourcesEnabled, &intervalSecs, &h.LastScanAt, &h.CriteriaVersion, &h.Active)
	if err != nil {
		return domain.Hunt{}, err
	}
	h.ScanInterval = time.Duration(intervalSecs) * time.Second
	return h, nil
}

// GetByID implements domain.HuntStore.
func (s *HuntStore) GetByID(ctx context.Context, id string) (domain.Hunt, error) {
	h, err := scanHunt(s.pool.QueryRow(ctx, `SELECT `+huntColumns+` FROM hunts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Hunt{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Hunt{}, fmt.Errorf("postgres: get hunt %s: %w", id, err)
	}
	return h, nil
}

// ListActive implements domain.HuntStore.
func (s *HuntStore) ListActive(ctx context.Context) ([]domain.Hunt, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+huntColumns+` FROM hunts WHERE active ORDER BY last_scan_at NULLS FIRST, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active hunts: %w", err)
	}
	defer rows.Close()

	var out []domain.Hunt
	for rows.Next() {
		h, err := scanHunt(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan hunt: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: hunt rows: %w", err)
	}
	return out, nil
}

// NextCriteriaVersion implements domain.HuntStore.
func (s *HuntStore) NextCriteriaVersion(ctx context.Context, huntID string) (int64, error) {
	var v int64
	err := s.pool.QueryRow(ctx,
		`UPDATE hunts SET criteria_version = criteria_version + 1 WHERE id = $1 RETURNING criteria_version`,
		huntID,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: next criteria version %s: %w", huntID, err)
	}
	return v, nil
}

// MarkScanned implements domain.HuntStore.
func (s *HuntStore) MarkScanned(ctx context.Context, huntID string, at time.Time) error {
	if _, err := s.pool.Exec(ctx, `UPDATE hunts SET last_scan_at = $2 WHERE id = $1`, huntID, at); err != nil {
		return fmt.Errorf("postgres: mark hunt %s scanned: %w", huntID, err)
	}
	return nil
}

var _ domain.HuntStore = (*HuntStore)(nil)
