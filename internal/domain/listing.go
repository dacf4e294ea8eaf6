package domain

import "time"

// ListingStatus is the presence state of a listing across crawl runs.
type ListingStatus string

const (
	ListingActive           ListingStatus = "active"
	ListingMissingPending   ListingStatus = "missing_pending"
	ListingMissingConfirmed ListingStatus = "missing_confirmed"
	ListingDelisted         ListingStatus = "delisted"
)

// Visible reports whether listings in this state belong in active candidate
// sets. A single missed run keeps the listing visible as pending.
func (s ListingStatus) Visible() bool {
	return s == ListingActive || s == ListingMissingPending
}

// LifecycleStatus is a listing's externally verified state.
type LifecycleStatus string

const (
	LifecycleActive  LifecycleStatus = "active"
	LifecycleSold    LifecycleStatus = "sold"
	LifecycleExpired LifecycleStatus = "expired"
)

// ListingKey is the natural key of a scraped listing.
type ListingKey struct {
	Source          string
	SourceListingID string
}

// ListingRecord is a normalized scraped listing. It is upserted by
// (Source, SourceListingID).
type ListingRecord struct {
	ID              int64
	Source          string
	SourceListingID string
	URL             string
	Identity        VehicleIdentity
	AskingPrice     *float64
	Location        string
	EventKey        string
	IdentityPartial bool
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
	Status          ListingStatus
	MissingStreak   int

	LifecycleStatus    LifecycleStatus
	LifecycleCheckedAt *time.Time
	LifecycleReason    string
}

// Key returns the listing's natural key.
func (l ListingRecord) Key() ListingKey {
	return ListingKey{Source: l.Source, SourceListingID: l.SourceListingID}
}
