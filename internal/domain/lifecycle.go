package domain

import "time"

// LifecycleCheckResult is the outcome of re-fetching a candidate's source
// page. Ambiguous results carry the candidate's previous status unchanged.
type LifecycleCheckResult struct {
	ListingID  int64
	Status     LifecycleStatus
	HTTPStatus int
	Reason     string
	Error      string
	Ambiguous  bool
	Attempts   int
	CheckedAt  time.Time
}

// VerificationTarget is a queued listing awaiting a lifecycle check.
type VerificationTarget struct {
	ListingID     int64
	Source        string
	URL           string
	CurrentStatus LifecycleStatus
	CheckedAt     *time.Time
}
