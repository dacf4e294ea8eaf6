package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/carbitrage/internal/domain"
	"github.com/alanyoungcy/carbitrage/internal/normalize"
)

// SalesStore implements domain.SalesStore using PostgreSQL.
type SalesStore struct {
	pool *pgxpool.Pool
}

// NewSalesStore creates a new SalesStore.
func NewSalesStore(pool *pgxpool.Pool) *SalesStore {
	return &SalesStore{pool: pool}
}

// ListAccounts returns every account with sales history.
func (s *SalesStore) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT account_id FROM sales ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sales accounts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListByAccount returns an account's completed sales, oldest first.
func (s *SalesStore) ListByAccount(ctx context.Context, accountID string) ([]domain.Sale, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, make, model, variant, drivetrain, year, km,
		       buy_price, sale_price, days_to_clear, sold_at
		FROM sales
		WHERE account_id = $1
		ORDER BY sold_at, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sales for %s: %w", accountID, err)
	}
	defer rows.Close()

	var out []domain.Sale
	for rows.Next() {
		var sale domain.Sale
		var drive string
		if err := rows.Scan(&sale.ID, &sale.AccountID, &sale.Make, &sale.Model, &sale.Variant, &drive,
			&sale.Year, &sale.Km, &sale.BuyPrice, &sale.SalePrice, &sale.DaysToClear, &sale.SoldAt); err != nil {
			return nil, fmt.Errorf("postgres: scan sale: %w", err)
		}
		sale.Drivetrain = normalize.Drivetrain(drive)
		out = append(out, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: sale rows: %w", err)
	}
	return out, nil
}

var _ domain.SalesStore = (*SalesStore)(nil)
