package domain

import "time"

// PresenceEventType is the kind of lifecycle transition recorded.
type PresenceEventType string

const (
	PresenceFirstSeen   PresenceEventType = "FIRST_SEEN"
	PresenceWentMissing PresenceEventType = "WENT_MISSING"
	PresenceReturned    PresenceEventType = "RETURNED"
)

// PresenceEvent is an append-only audit record of a presence transition.
type PresenceEvent struct {
	ListingKey ListingKey
	RunID      string
	Type       PresenceEventType
	OccurredAt time.Time
}

// RunOutcome is the terminal state of a crawl run.
type RunOutcome string

const (
	RunCompleted RunOutcome = "completed"
	RunFailed    RunOutcome = "failed"
)

// CrawlRun is the completion record of one crawl run for one source.
type CrawlRun struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	Outcome     RunOutcome `json:"outcome"`
	Seen        int        `json:"seen"`
	New         int        `json:"new"`
	Returned    int        `json:"returned"`
	WentMissing int        `json:"went_missing"`
	Delisted    int        `json:"delisted"`
	Dropped     int        `json:"dropped"`
}

// CrawlBatch is the output of one crawler invocation as delivered to the
// engine.
type CrawlBatch struct {
	RunID      string       `json:"run_id"`
	Source     string       `json:"source"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	OK         bool         `json:"ok"`
	Records    []RawListing `json:"records"`
}

// ReplaySummary reports a replay of every archived batch under a prefix.
type ReplaySummary struct {
	Prefix         string   `json:"prefix"`
	Applied        []string `json:"applied"`
	AlreadyApplied int      `json:"already_applied"`
}

// RunPlan is the full set of writes for one crawl run. It must be committed
// atomically.
type RunPlan struct {
	Run      CrawlRun
	Listings []ListingRecord
	Events   []PresenceEvent
}
