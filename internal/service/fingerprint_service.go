package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/carbitrage/internal/domain"
	"github.com/alanyoungcy/carbitrage/internal/fingerprint"
	"github.com/alanyoungcy/carbitrage/internal/metrics"
)

// FingerprintService rebuilds winner fingerprints from sales history.
type FingerprintService struct {
	sales     domain.SalesStore
	prints    domain.FingerprintStore
	bestSales domain.BestSaleCache
	opts      fingerprint.Options
	logger    *slog.Logger
}

// NewFingerprintService creates a FingerprintService. bestSales may be nil.
func NewFingerprintService(sales domain.SalesStore, prints domain.FingerprintStore, bestSales domain.BestSaleCache, opts fingerprint.Options, logger *slog.Logger) *FingerprintService {
	return &FingerprintService{
		sales:     sales,
		prints:    prints,
		bestSales: bestSales,
		opts:      opts,
		logger:    logger.With(slog.String("component", "fingerprint_service")),
	}
}

// Refresh rebuilds fingerprints for every account with sales and returns
// the number stored per account.
func (s *FingerprintService) Refresh(ctx context.Context) (map[string]int, error) {
	accounts, err := s.sales.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fingerprint_service: list accounts: %w", err)
	}
	out := make(map[string]int, len(accounts))
	for _, acct := range accounts {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		n, err := s.RefreshAccount(ctx, acct)
		if err != nil {
			return out, err
		}
		out[acct] = n
	}
	return out, nil
}

// RefreshAccount rebuilds one account's fingerprints and drops its cached
// best sales.
func (s *FingerprintService) RefreshAccount(ctx context.Context, accountID string) (int, error) {
	sales, err := s.sales.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("fingerprint_service: list sales %s: %w", accountID, err)
	}
	fps := fingerprint.Aggregate(accountID, sales, s.opts)
	if err := s.prints.ReplaceForAccount(ctx, accountID, fps); err != nil {
		return 0, fmt.Errorf("fingerprint_service: replace %s: %w", accountID, err)
	}
	if s.bestSales != nil {
		if err := s.bestSales.InvalidateAccount(ctx, accountID); err != nil {
			s.logger.WarnContext(ctx, "best sale cache invalidation failed",
				slog.String("account_id", accountID),
				slog.String("error", err.Error()),
			)
		}
	}
	metrics.FingerprintsRefreshed.WithLabelValues(accountID).Set(float64(len(fps)))
	s.logger.InfoContext(ctx, "fingerprints refreshed",
		slog.String("account_id", accountID),
		slog.Int("sales", len(sales)),
		slog.Int("fingerprints", len(fps)),
	)
	return len(fps), nil
}
