package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// HuntRebuilder is the hunt service surface the API needs.
type HuntRebuilder interface {
	Rebuild(ctx context.Context, huntID string) (domain.RebuildSummary, error)
	RebuildDue(ctx context.Context, now time.Time) ([]domain.RebuildSummary, error)
	Candidates(ctx context.Context, huntID string, includeIgnored bool) ([]domain.MatchCandidate, error)
}

// HuntHandler serves hunt rebuild and candidate endpoints.
type HuntHandler struct {
	hunts  HuntRebuilder
	logger *slog.Logger
}

// NewHuntHandler creates a HuntHandler.
func NewHuntHandler(hunts HuntRebuilder, logger *slog.Logger) *HuntHandler {
	return &HuntHandler{hunts: hunts, logger: logHandler(logger, "hunt")}
}

// Rebuild recomputes one hunt's candidate set.
// POST /api/hunts/{id}/rebuild
func (h *HuntHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	sum, err := h.hunts.Rebuild(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// RebuildDue rebuilds every hunt whose rescan interval has elapsed.
// POST /api/hunts/rebuild-due
func (h *HuntHandler) RebuildDue(w http.ResponseWriter, r *http.Request) {
	sums, err := h.hunts.RebuildDue(r.Context(), time.Now().UTC())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if sums == nil {
		sums = []domain.RebuildSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rebuilt": sums})
}

type candidateView struct {
	ID                   int64    `json:"id"`
	Rank                 int      `json:"rank"`
	Decision             string   `json:"decision"`
	Reasons              []string `json:"reasons"`
	ListingID            int64    `json:"listing_id"`
	Source               string   `json:"source"`
	URL                  string   `json:"url"`
	Vehicle              string   `json:"vehicle"`
	Location             string   `json:"location,omitempty"`
	AskingPrice          *float64 `json:"asking_price"`
	FingerprintRank      int      `json:"fingerprint_rank"`
	KmScore              float64  `json:"km_score"`
	DNAScore             float64  `json:"dna_score"`
	PriceScore           float64  `json:"price_score"`
	FinalScore           float64  `json:"final_score"`
	Confidence           string   `json:"confidence"`
	SampleSize           int      `json:"sample_size"`
	ProvenExitValue      *float64 `json:"proven_exit_value"`
	ExitAnchor           string   `json:"exit_anchor,omitempty"`
	GapDollars           *float64 `json:"gap_dollars"`
	GapPct               *float64 `json:"gap_pct"`
	LastSaleGap          *float64 `json:"last_sale_gap"`
	MedianFingerprintGap *float64 `json:"median_fingerprint_gap"`
	IsCheapest           bool     `json:"is_cheapest"`
	LifecycleStatus      string   `json:"lifecycle_status,omitempty"`
}

func toCandidateView(c domain.MatchCandidate) candidateView {
	return candidateView{
		ID:                   c.ID,
		Rank:                 c.RankPosition,
		Decision:             string(c.Decision),
		Reasons:              c.Reasons,
		ListingID:            c.Listing.ID,
		Source:               c.Listing.Source,
		URL:                  c.Listing.URL,
		Vehicle:              c.Listing.Identity.Summary(),
		Location:             c.Listing.Location,
		AskingPrice:          c.Listing.AskingPrice,
		FingerprintRank:      c.FingerprintRank,
		KmScore:              c.KmScore,
		DNAScore:             c.DNAScore,
		PriceScore:           c.PriceScore,
		FinalScore:           c.FinalScore,
		Confidence:           string(c.Confidence),
		SampleSize:           c.SampleSize,
		ProvenExitValue:      c.ProvenExitValue,
		ExitAnchor:           string(c.ExitAnchor),
		GapDollars:           c.GapDollars,
		GapPct:               c.GapPct,
		LastSaleGap:          c.LastSaleGap,
		MedianFingerprintGap: c.MedianFingerprintGap,
		IsCheapest:           c.IsCheapest,
		LifecycleStatus:      string(c.Listing.LifecycleStatus),
	}
}

// Candidates lists a hunt's ranked candidates. IGNORE rows are hidden unless
// include_ignored=true.
// GET /api/hunts/{id}/candidates
func (h *HuntHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cands, err := h.hunts.Candidates(r.Context(), id, queryBool(r, "include_ignored"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	out := make([]candidateView, 0, len(cands))
	for _, c := range cands {
		out = append(out, toCandidateView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hunt_id":    id,
		"candidates": out,
	})
}
