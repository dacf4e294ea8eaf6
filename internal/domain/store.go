package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ListingQuery selects visible listings for a hunt rebuild.
type ListingQuery struct {
	Make    string
	Model   string
	Sources []string
}

// ListingStore persists normalized listings and their presence state.
type ListingStore interface {
	// ListBySource returns every stored listing of a source, delisted ones
	// included, as the input to presence planning.
	ListBySource(ctx context.Context, source string) ([]ListingRecord, error)
	// ListVisible returns ACTIVE and MISSING_PENDING listings matching q.
	ListVisible(ctx context.Context, q ListingQuery) ([]ListingRecord, error)
	GetByID(ctx context.Context, id int64) (ListingRecord, error)
}

// CrawlRunStore commits the writes of a crawl run atomically.
type CrawlRunStore interface {
	// CommitRun writes the run's listings, presence events and completion
	// record in one transaction. It returns ErrRunAlreadyApplied when the
	// run id was committed before.
	CommitRun(ctx context.Context, plan RunPlan) error
	ListRecent(ctx context.Context, source string, limit int) ([]CrawlRun, error)
}

// PresenceEventStore reads the append-only presence audit trail.
type PresenceEventStore interface {
	ListByListing(ctx context.Context, key ListingKey) ([]PresenceEvent, error)
}

// FingerprintStore reads precomputed winner fingerprints and sales anchors.
type FingerprintStore interface {
	// TopForAccount returns fingerprints ordered by total profit descending,
	// capped at limit.
	TopForAccount(ctx context.Context, accountID string, limit int) ([]WinnerFingerprint, error)
	// BestHistoricalSale returns the highest-profit sale for make/model, or
	// ErrNotFound.
	BestHistoricalSale(ctx context.Context, accountID, vehicleMake, model string) (BestSale, error)
	// ReplaceForAccount swaps the account's fingerprints in one transaction.
	ReplaceForAccount(ctx context.Context, accountID string, fps []WinnerFingerprint) error
}

// SalesStore reads completed sales history.
type SalesStore interface {
	ListAccounts(ctx context.Context) ([]string, error)
	ListByAccount(ctx context.Context, accountID string) ([]Sale, error)
}

// HuntStore reads hunt definitions and records scan bookkeeping.
type HuntStore interface {
	GetByID(ctx context.Context, id string) (Hunt, error)
	ListActive(ctx context.Context) ([]Hunt, error)
	// NextCriteriaVersion atomically increments and returns the hunt's
	// criteria version.
	NextCriteriaVersion(ctx context.Context, huntID string) (int64, error)
	MarkScanned(ctx context.Context, huntID string, at time.Time) error
}

// CandidateStore is the persisted candidate table.
type CandidateStore interface {
	// ReplaceSet supersedes the hunt's candidates with set, tagged version.
	// It returns ErrStaleVersion when a newer version is already stored.
	ReplaceSet(ctx context.Context, huntID string, version int64, set []MatchCandidate) error
	ListByHunt(ctx context.Context, huntID string, includeIgnored bool) ([]MatchCandidate, error)
}

// LifecycleStore is the verification queue and result sink.
type LifecycleStore interface {
	// ClaimBatch returns up to limit visible candidate listings ordered by
	// staleness of their last lifecycle check, never-checked first.
	ClaimBatch(ctx context.Context, limit int) ([]VerificationTarget, error)
	SaveResult(ctx context.Context, res LifecycleCheckResult) error
}

// CodeTableStore loads DMS make/model id tables.
type CodeTableStore interface {
	LoadCodeTable(ctx context.Context) (CodeTable, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
