package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
	"github.com/alanyoungcy/carbitrage/internal/metrics"
)

// BatchVerifier checks a batch of listings.
type BatchVerifier interface {
	VerifyBatch(ctx context.Context, targets []domain.VerificationTarget) []domain.LifecycleCheckResult
}

// VerifySummary counts the outcomes of one verification batch.
type VerifySummary struct {
	Claimed   int `json:"claimed"`
	Checked   int `json:"checked"`
	Active    int `json:"active"`
	Sold      int `json:"sold"`
	Expired   int `json:"expired"`
	Ambiguous int `json:"ambiguous"`
}

// VerifyService drains the verification queue one batch at a time.
type VerifyService struct {
	queue     domain.LifecycleStore
	verifier  BatchVerifier
	batchSize int
	logger    *slog.Logger
}

// NewVerifyService creates a VerifyService.
func NewVerifyService(queue domain.LifecycleStore, verifier BatchVerifier, batchSize int, logger *slog.Logger) *VerifyService {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &VerifyService{
		queue:     queue,
		verifier:  verifier,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "verify_service")),
	}
}

// RunBatch claims the stalest candidates, verifies them and stores every
// result. Results already obtained are stored even when ctx is cancelled
// mid-batch, so an interrupted batch still makes progress.
func (s *VerifyService) RunBatch(ctx context.Context) (VerifySummary, error) {
	targets, err := s.queue.ClaimBatch(ctx, s.batchSize)
	if err != nil {
		return VerifySummary{}, fmt.Errorf("verify_service: claim batch: %w", err)
	}
	sum := VerifySummary{Claimed: len(targets)}
	if len(targets) == 0 {
		return sum, nil
	}
	metrics.VerifyQueueClaimed.Add(float64(len(targets)))

	results := s.verifier.VerifyBatch(ctx, targets)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	for _, r := range results {
		if err := s.queue.SaveResult(saveCtx, r); err != nil {
			return sum, fmt.Errorf("verify_service: save result %d: %w", r.ListingID, err)
		}
		sum.Checked++
		metrics.VerificationsTotal.WithLabelValues(string(r.Status), strconv.FormatBool(r.Ambiguous)).Inc()
		switch {
		case r.Ambiguous:
			sum.Ambiguous++
		case r.Status == domain.LifecycleSold:
			sum.Sold++
		case r.Status == domain.LifecycleExpired:
			sum.Expired++
		default:
			sum.Active++
		}
	}

	s.logger.InfoContext(ctx, "verification batch done",
		slog.Int("claimed", sum.Claimed),
		slog.Int("checked", sum.Checked),
		slog.Int("active", sum.Active),
		slog.Int("sold", sum.Sold),
		slog.Int("expired", sum.Expired),
		slog.Int("ambiguous", sum.Ambiguous),
	)
	return sum, nil
}
