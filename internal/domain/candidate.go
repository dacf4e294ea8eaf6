package domain

import "time"

// Decision is the actionable classification of a candidate.
type Decision string

const (
	DecisionBuy        Decision = "BUY"
	DecisionWatch      Decision = "WATCH"
	DecisionIgnore     Decision = "IGNORE"
	DecisionUnverified Decision = "UNVERIFIED"
)

// Order returns the display order of decision buckets.
func (d Decision) Order() int {
	switch d {
	case DecisionBuy:
		return 0
	case DecisionWatch:
		return 1
	case DecisionUnverified:
		return 2
	default:
		return 3
	}
}

// Actionable reports whether the decision should alert a dealer.
func (d Decision) Actionable() bool {
	return d == DecisionBuy || d == DecisionWatch
}

// ConfidenceLabel is derived from raw sample size, independently of score.
type ConfidenceLabel string

const (
	ConfidenceHigh   ConfidenceLabel = "high"
	ConfidenceMedium ConfidenceLabel = "medium"
	ConfidenceLow    ConfidenceLabel = "low"
)

// ExitAnchor names the proven-exit quantity a gap was computed from.
type ExitAnchor string

const (
	ExitAnchorBestSale ExitAnchor = "best_sale"
	ExitAnchorLastSale ExitAnchor = "last_sale"
	ExitAnchorNone     ExitAnchor = ""
)

// MatchCandidate is one scored, decision-tagged pairing of a live listing
// with a hunt. It is recomputed wholesale on every rebuild.
type MatchCandidate struct {
	ID              int64
	HuntID          string
	CriteriaVersion int64
	Listing         ListingRecord

	FingerprintRank int
	KmScore         float64
	DNAScore        float64
	PriceScore      float64
	FinalScore      float64
	Confidence      ConfidenceLabel
	SampleSize      int

	ProvenExitValue      *float64
	ExitAnchor           ExitAnchor
	GapDollars           *float64
	GapPct               *float64
	LastSaleGap          *float64
	MedianFingerprintGap *float64

	Decision     Decision
	Reasons      []string
	RankPosition int
	IsCheapest   bool
	CreatedAt    time.Time
}

// EventScore is the aggregate opportunity score of one auction event.
type EventScore struct {
	EventKey    string  `json:"event_key"`
	Score       float64 `json:"score"`
	Members     int     `json:"members"`
	ProfitDense int     `json:"profit_dense"`
}

// RebuildSummary is returned by every rebuild invocation.
type RebuildSummary struct {
	HuntID          string           `json:"hunt_id"`
	CriteriaVersion int64            `json:"criteria_version"`
	Counts          map[Decision]int `json:"counts"`
	Events          []EventScore     `json:"events,omitempty"`
	Alerts          int              `json:"alerts"`
}
