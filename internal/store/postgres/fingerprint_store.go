package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// FingerprintStore implements domain.FingerprintStore using PostgreSQL.
type FingerprintStore struct {
	pool *pgxpool.Pool
}

// NewFingerprintStore creates a new FingerprintStore.
func NewFingerprintStore(pool *pgxpool.Pool) *FingerprintStore {
	return &FingerprintStore{pool: pool}
}

// TopForAccount implements domain.FingerprintStore.
func (s *FingerprintStore) TopForAccount(ctx context.Context, accountID string, limit int) ([]domain.WinnerFingerprint, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT account_id, rank, make, model, variant, drivetrain, year_min, year_max,
		       avg_profit, total_profit, median_profit, avg_km, median_km, times_sold,
		       last_sale_price, last_sale_date, median_sale_price, win_rate, median_days_to_clear
		FROM winner_fingerprints
		WHERE account_id = $1
		ORDER BY total_profit DESC, rank ASC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: top fingerprints for %s: %w", accountID, err)
	}
	defer rows.Close()

	var out []domain.WinnerFingerprint
	for rows.Next() {
		var f domain.WinnerFingerprint
		var drive string
		if err := rows.Scan(
			&f.AccountID, &f.Rank, &f.Make, &f.Model, &f.Variant, &drive, &f.YearMin, &f.YearMax,
			&f.AvgProfit, &f.TotalProfit, &f.MedianProfit, &f.AvgKm, &f.MedianKm, &f.TimesSold,
			&f.LastSalePrice, &f.LastSaleDate, &f.MedianSalePrice, &f.WinRate, &f.MedianDaysToClear,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan fingerprint: %w", err)
		}
		f.Drivetrain = domain.Drivetrain(drive)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: fingerprint rows: %w", err)
	}
	return out, nil
}

// BestHistoricalSale implements domain.FingerprintStore. Ties on profit go
// to the most recent sale.
func (s *FingerprintStore) BestHistoricalSale(ctx context.Context, accountID, vehicleMake, model string) (domain.BestSale, error) {
	var b domain.BestSale
	err := s.pool.QueryRow(ctx, `
		SELECT make, model, variant, year, km, sale_price, sale_price - buy_price, days_to_clear, sold_at
		FROM sales
		WHERE account_id = $1 AND make = $2 AND model = $3
		  AND sale_price IS NOT NULL AND buy_price IS NOT NULL
		ORDER BY sale_price - buy_price DESC, sold_at DESC
		LIMIT 1`, accountID, vehicleMake, model,
	).Scan(&b.Make, &b.Model, &b.Variant, &b.Year, &b.Km, &b.SalePrice, &b.Profit, &b.DaysToClear, &b.SoldAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BestSale{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BestSale{}, fmt.Errorf("postgres: best sale %s %s: %w", vehicleMake, model, err)
	}
	return b, nil
}

// ReplaceForAccount implements domain.FingerprintStore.
func (s *FingerprintStore) ReplaceForAccount(ctx context.Context, accountID string, fps []domain.WinnerFingerprint) error {
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM winner_fingerprints WHERE account_id = $1`, accountID); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if len(fps) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, f := range fps {
			batch.Queue(`
				INSERT INTO winner_fingerprints (
					account_id, rank, make, model, variant, drivetrain, year_min, year_max,
					avg_profit, total_profit, median_profit, avg_km, median_km, times_sold,
					last_sale_price, last_sale_date, median_sale_price, win_rate, median_days_to_clear
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
				accountID, f.Rank, f.Make, f.Model, f.Variant, string(f.Drivetrain), f.YearMin, f.YearMax,
				f.AvgProfit, f.TotalProfit, f.MedianProfit, f.AvgKm, f.MedianKm, f.TimesSold,
				f.LastSalePrice, f.LastSaleDate, f.MedianSalePrice, f.WinRate, f.MedianDaysToClear,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres: replace fingerprints for %s: %w", accountID, err)
	}
	return nil
}

var _ domain.FingerprintStore = (*FingerprintStore)(nil)
