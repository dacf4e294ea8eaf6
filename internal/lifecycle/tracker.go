// Package lifecycle plans presence transitions of listings across crawl
// runs. Planning is pure: the caller commits the returned plan atomically.
package lifecycle

import (
	"cmp"
	"slices"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// Policy holds the presence thresholds.
type Policy struct {
	// ConfirmAfter consecutive misses move a listing to MISSING_CONFIRMED.
	ConfirmAfter int
	// DelistAfter consecutive misses delist a listing.
	DelistAfter int
	// StaleAfter delists a missing listing whose last sighting is older,
	// regardless of its streak. Zero disables the check.
	StaleAfter time.Duration
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{ConfirmAfter: 2, DelistAfter: 2, StaleAfter: 72 * time.Hour}
}

// Tracker plans presence transitions.
type Tracker struct {
	policy Policy
}

// NewTracker creates a Tracker. Thresholds below one are raised to one.
func NewTracker(p Policy) *Tracker {
	p.ConfirmAfter = max(p.ConfirmAfter, 1)
	p.DelistAfter = max(p.DelistAfter, 1)
	return &Tracker{policy: p}
}

// Plan computes the writes of one crawl run. existing holds every stored
// listing of the run's source; observed holds the normalized listings the
// run saw, where later duplicates of a key replace earlier ones.
//
// Only a completed run advances missing streaks. A failed run still records
// what it saw but never counts absence.
func (t *Tracker) Plan(run domain.CrawlRun, existing, observed []domain.ListingRecord) domain.RunPlan {
	seenAt := run.FinishedAt
	if seenAt.IsZero() {
		seenAt = run.StartedAt
	}

	prev := make(map[domain.ListingKey]domain.ListingRecord, len(existing))
	for _, l := range existing {
		prev[l.Key()] = l
	}

	latest := make(map[domain.ListingKey]domain.ListingRecord, len(observed))
	for _, l := range observed {
		latest[l.Key()] = l
	}

	plan := domain.RunPlan{Run: run}
	event := func(k domain.ListingKey, typ domain.PresenceEventType) {
		plan.Events = append(plan.Events, domain.PresenceEvent{
			ListingKey: k,
			RunID:      run.ID,
			Type:       typ,
			OccurredAt: seenAt,
		})
	}

	for _, k := range sortedKeys(latest) {
		obs := latest[k]
		obs.LastSeenAt = seenAt
		obs.Status = domain.ListingActive
		obs.MissingStreak = 0
		plan.Run.Seen++

		old, ok := prev[k]
		if !ok {
			obs.FirstSeenAt = seenAt
			plan.Listings = append(plan.Listings, obs)
			plan.Run.New++
			event(k, domain.PresenceFirstSeen)
			continue
		}

		obs.ID = old.ID
		obs.FirstSeenAt = old.FirstSeenAt
		obs.LifecycleStatus = old.LifecycleStatus
		obs.LifecycleCheckedAt = old.LifecycleCheckedAt
		obs.LifecycleReason = old.LifecycleReason
		plan.Listings = append(plan.Listings, obs)
		if old.MissingStreak > 0 || old.Status != domain.ListingActive {
			plan.Run.Returned++
			event(k, domain.PresenceReturned)
		}
	}

	if run.Outcome != domain.RunCompleted {
		return plan
	}

	for _, k := range sortedKeys(prev) {
		if _, seen := latest[k]; seen {
			continue
		}
		l := prev[k]
		if l.Status == domain.ListingDelisted {
			continue
		}
		l.MissingStreak++
		if l.MissingStreak == 1 {
			plan.Run.WentMissing++
			event(k, domain.PresenceWentMissing)
		}
		switch {
		case l.MissingStreak >= t.policy.DelistAfter || t.stale(l, seenAt):
			l.Status = domain.ListingDelisted
			plan.Run.Delisted++
		case l.MissingStreak >= t.policy.ConfirmAfter:
			l.Status = domain.ListingMissingConfirmed
		default:
			l.Status = domain.ListingMissingPending
		}
		plan.Listings = append(plan.Listings, l)
	}
	return plan
}

func (t *Tracker) stale(l domain.ListingRecord, now time.Time) bool {
	return t.policy.StaleAfter > 0 && !l.LastSeenAt.IsZero() && now.Sub(l.LastSeenAt) >= t.policy.StaleAfter
}

func sortedKeys(m map[domain.ListingKey]domain.ListingRecord) []domain.ListingKey {
	keys := make([]domain.ListingKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b domain.ListingKey) int {
		return cmp.Or(cmp.Compare(a.Source, b.Source), cmp.Compare(a.SourceListingID, b.SourceListingID))
	})
	return keys
}
