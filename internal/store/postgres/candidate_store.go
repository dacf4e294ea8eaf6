package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// CandidateStore implements domain.CandidateStore using PostgreSQL.
type CandidateStore struct {
	pool *pgxpool.Pool
}

// NewCandidateStore creates a new CandidateStore.
func NewCandidateStore(pool *pgxpool.Pool) *CandidateStore {
	return &CandidateStore{pool: pool}
}

// ReplaceSet supersedes a hunt's candidate set wholesale. The version row
// is bumped with a conditional upsert, which also serializes concurrent
// writers on the hunt; a write older than the stored version is rejected
// with domain.ErrStaleVersion.
func (s *CandidateStore) ReplaceSet(ctx context.Context, huntID string, version int64, set []domain.MatchCandidate) error {
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var stored int64
		err := tx.QueryRow(ctx, `
			INSERT INTO candidate_set_versions (hunt_id, criteria_version, replaced_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (hunt_id) DO UPDATE SET
				criteria_version = EXCLUDED.criteria_version,
				replaced_at      = NOW()
			WHERE candidate_set_versions.criteria_version <= EXCLUDED.criteria_version
			RETURNING criteria_version`, huntID, version,
		).Scan(&stored)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrStaleVersion
		}
		if err != nil {
			return fmt.Errorf("bump version: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM match_candidates WHERE hunt_id = $1`, huntID); err != nil {
			return fmt.Errorf("delete previous set: %w", err)
		}
		if len(set) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, c := range set {
			batch.Queue(`
				INSERT INTO match_candidates (
					hunt_id, criteria_version, listing_id, fingerprint_rank,
					km_score, dna_score, price_score, final_score, confidence, sample_size,
					proven_exit_value, exit_anchor, gap_dollars, gap_pct,
					last_sale_gap, median_fingerprint_gap,
					decision, reasons, rank_position, is_cheapest, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
				huntID, version, c.Listing.ID, c.FingerprintRank,
				c.KmScore, c.DNAScore, c.PriceScore, c.FinalScore, string(c.Confidence), c.SampleSize,
				c.ProvenExitValue, string(c.ExitAnchor), c.GapDollars, c.GapPct,
				c.LastSaleGap, c.MedianFingerprintGap,
				string(c.Decision), nonNil(c.Reasons), c.RankPosition, c.IsCheapest, c.CreatedAt,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if errors.Is(err, domain.ErrStaleVersion) {
		return err
	}
	if err != nil {
		return fmt.Errorf("postgres: replace candidates for hunt %s v%d: %w", huntID, version, err)
	}
	return nil
}

// ListByHunt returns a hunt's candidates in bucket then rank order.
func (s *CandidateStore) ListByHunt(ctx context.Context, huntID string, includeIgnored bool) ([]domain.MatchCandidate, error) {
	query := `
		SELECT c.id, c.hunt_id, c.criteria_version, c.fingerprint_rank,
		       c.km_score, c.dna_score, c.price_score, c.final_score, c.confidence, c.sample_size,
		       c.proven_exit_value, c.exit_anchor, c.gap_dollars, c.gap_pct,
		       c.last_sale_gap, c.median_fingerprint_gap,
		       c.decision, c.reasons, c.rank_position, c.is_cheapest, c.created_at,` + listingColumns + `
		FROM match_candidates c
		JOIN listings l ON l.id = c.listing_id
		WHERE c.hunt_id = $1 AND ($2 OR c.decision <> 'IGNORE')
		ORDER BY CASE c.decision
		           WHEN 'BUY' THEN 0 WHEN 'WATCH' THEN 1 WHEN 'UNVERIFIED' THEN 2 ELSE 3
		         END, c.rank_position`
	rows, err := s.pool.Query(ctx, query, huntID, includeIgnored)
	if err != nil {
		return nil, fmt.Errorf("postgres: list candidates for hunt %s: %w", huntID, err)
	}
	defer rows.Close()

	var out []domain.MatchCandidate
	for rows.Next() {
		var c domain.MatchCandidate
		var confidence, anchor, decision string
		l, err := scanListingAfter(rows,
			&c.ID, &c.HuntID, &c.CriteriaVersion, &c.FingerprintRank,
			&c.KmScore, &c.DNAScore, &c.PriceScore, &c.FinalScore, &confidence, &c.SampleSize,
			&c.ProvenExitValue, &anchor, &c.GapDollars, &c.GapPct,
			&c.LastSaleGap, &c.MedianFingerprintGap,
			&decision, &c.Reasons, &c.RankPosition, &c.IsCheapest, &c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan candidate: %w", err)
		}
		c.Listing = l
		c.Confidence = domain.ConfidenceLabel(confidence)
		c.ExitAnchor = domain.ExitAnchor(anchor)
		c.Decision = domain.Decision(decision)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: candidate rows: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ domain.CandidateStore = (*CandidateStore)(nil)
