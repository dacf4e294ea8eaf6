package domain

import "time"

// AlertEvent is emitted when a candidate moves into BUY or WATCH. Sinks own
// the formatting.
type AlertEvent struct {
	ID               string          `json:"id"`
	HuntID           string          `json:"hunt_id"`
	ListingID        int64           `json:"listing_id"`
	Decision         Decision        `json:"decision"`
	PreviousDecision Decision        `json:"previous_decision,omitempty"`
	VehicleSummary   string          `json:"vehicle_summary"`
	Price            *float64        `json:"price,omitempty"`
	GapDollars       *float64        `json:"gap_dollars,omitempty"`
	GapPct           *float64        `json:"gap_pct,omitempty"`
	Confidence       ConfidenceLabel `json:"confidence"`
	URL              string          `json:"url"`
	Reasons          []string        `json:"reasons,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
}
