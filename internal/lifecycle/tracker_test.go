package lifecycle

import (
	"testing"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func rec(id string) domain.ListingRecord {
	return domain.ListingRecord{Source: "pickles", SourceListingID: id, Status: domain.ListingActive}
}

func run(id string, at time.Time, outcome domain.RunOutcome) domain.CrawlRun {
	return domain.CrawlRun{ID: id, Source: "pickles", StartedAt: at.Add(-time.Minute), FinishedAt: at, Outcome: outcome}
}

// apply folds a plan back into the stored state the way a store would.
func apply(state map[domain.ListingKey]domain.ListingRecord, plan domain.RunPlan) []domain.ListingRecord {
	for _, l := range plan.Listings {
		state[l.Key()] = l
	}
	out := make([]domain.ListingRecord, 0, len(state))
	for _, l := range state {
		out = append(out, l)
	}
	return out
}

func countEvents(plan domain.RunPlan, typ domain.PresenceEventType) int {
	n := 0
	for _, e := range plan.Events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestPlanFirstSeen(t *testing.T) {
	tr := NewTracker(DefaultPolicy())
	plan := tr.Plan(run("r1", t0, domain.RunCompleted), nil, []domain.ListingRecord{rec("A"), rec("B"), rec("A")})

	if len(plan.Listings) != 2 {
		t.Fatalf("duplicate keys should collapse, got %d listings", len(plan.Listings))
	}
	if countEvents(plan, domain.PresenceFirstSeen) != 2 || plan.Run.New != 2 || plan.Run.Seen != 2 {
		t.Fatalf("unexpected first-seen accounting: %+v", plan.Run)
	}
	for _, l := range plan.Listings {
		if l.Status != domain.ListingActive || !l.FirstSeenAt.Equal(t0) || !l.LastSeenAt.Equal(t0) {
			t.Fatalf("new listing should be ACTIVE at first sighting: %+v", l)
		}
	}
}

func TestPlanMissingThenDelisted(t *testing.T) {
	tr := NewTracker(DefaultPolicy())
	state := map[domain.ListingKey]domain.ListingRecord{}

	existing := apply(state, tr.Plan(run("r1", t0, domain.RunCompleted), nil, []domain.ListingRecord{rec("A"), rec("B")}))

	p2 := tr.Plan(run("r2", t0.Add(time.Hour), domain.RunCompleted), existing, []domain.ListingRecord{rec("B")})
	existing = apply(state, p2)
	a := state[rec("A").Key()]
	if a.MissingStreak != 1 || a.Status != domain.ListingMissingPending || !a.Status.Visible() {
		t.Fatalf("one miss should leave A pending and visible: %+v", a)
	}
	if countEvents(p2, domain.PresenceWentMissing) != 1 || p2.Run.WentMissing != 1 {
		t.Fatalf("expected one WENT_MISSING event")
	}

	p3 := tr.Plan(run("r3", t0.Add(2*time.Hour), domain.RunCompleted), existing, []domain.ListingRecord{rec("B")})
	apply(state, p3)
	a = state[rec("A").Key()]
	if a.MissingStreak != 2 || a.Status.Visible() {
		t.Fatalf("two misses should exclude A from active sets: %+v", a)
	}
	if a.Status != domain.ListingDelisted || p3.Run.Delisted != 1 {
		t.Fatalf("expected A delisted, got %s", a.Status)
	}
	if countEvents(p3, domain.PresenceWentMissing) != 0 {
		t.Fatal("WENT_MISSING must only fire on the first miss")
	}
}

func TestPlanConfirmedBeforeDelist(t *testing.T) {
	tr := NewTracker(Policy{ConfirmAfter: 2, DelistAfter: 4})
	existing := []domain.ListingRecord{{Source: "pickles", SourceListingID: "A", Status: domain.ListingMissingPending, MissingStreak: 1, LastSeenAt: t0}}
	plan := tr.Plan(run("r", t0.Add(time.Hour), domain.RunCompleted), existing, nil)
	if got := plan.Listings[0]; got.Status != domain.ListingMissingConfirmed || got.MissingStreak != 2 {
		t.Fatalf("expected MISSING_CONFIRMED at streak 2, got %+v", got)
	}
}

func TestPlanReturned(t *testing.T) {
	tr := NewTracker(DefaultPolicy())
	checked := t0.Add(-time.Hour)
	existing := []domain.ListingRecord{{
		ID:                 42,
		Source:             "pickles",
		SourceListingID:    "A",
		Status:             domain.ListingMissingPending,
		MissingStreak:      1,
		FirstSeenAt:        t0.Add(-48 * time.Hour),
		LastSeenAt:         t0.Add(-2 * time.Hour),
		LifecycleStatus:    domain.LifecycleActive,
		LifecycleCheckedAt: &checked,
	}}

	plan := tr.Plan(run("r", t0, domain.RunCompleted), existing, []domain.ListingRecord{rec("A")})
	if countEvents(plan, domain.PresenceReturned) != 1 || plan.Run.Returned != 1 {
		t.Fatalf("expected exactly one RETURNED event, got %+v", plan.Events)
	}
	got := plan.Listings[0]
	if got.MissingStreak != 0 || got.Status != domain.ListingActive {
		t.Fatalf("returned listing should reset: %+v", got)
	}
	if got.ID != 42 || !got.FirstSeenAt.Equal(t0.Add(-48*time.Hour)) || got.LifecycleCheckedAt == nil {
		t.Fatalf("returned listing lost stored fields: %+v", got)
	}

	again := tr.Plan(run("r2", t0.Add(time.Hour), domain.RunCompleted), plan.Listings, []domain.ListingRecord{rec("A")})
	if countEvents(again, domain.PresenceReturned) != 0 {
		t.Fatal("steady sighting must not emit RETURNED")
	}
}

func TestPlanFailedRunNeverCountsAbsence(t *testing.T) {
	tr := NewTracker(DefaultPolicy())
	existing := []domain.ListingRecord{
		{Source: "pickles", SourceListingID: "A", Status: domain.ListingActive, LastSeenAt: t0.Add(-100 * time.Hour)},
		{Source: "pickles", SourceListingID: "B", Status: domain.ListingMissingPending, MissingStreak: 1, LastSeenAt: t0},
	}
	plan := tr.Plan(run("r", t0.Add(time.Hour), domain.RunFailed), existing, []domain.ListingRecord{rec("C")})

	if plan.Run.WentMissing != 0 || plan.Run.Delisted != 0 {
		t.Fatalf("failed run advanced streaks: %+v", plan.Run)
	}
	for _, l := range plan.Listings {
		if l.SourceListingID != "C" {
			t.Fatalf("failed run touched unseen listing %q", l.SourceListingID)
		}
	}
	if countEvents(plan, domain.PresenceFirstSeen) != 1 {
		t.Fatal("failed run should still record new sightings")
	}
}

func TestPlanStaleDelists(t *testing.T) {
	tr := NewTracker(DefaultPolicy())
	existing := []domain.ListingRecord{{Source: "pickles", SourceListingID: "A", Status: domain.ListingActive, LastSeenAt: t0}}
	plan := tr.Plan(run("r", t0.Add(80*time.Hour), domain.RunCompleted), existing, nil)
	if got := plan.Listings[0]; got.Status != domain.ListingDelisted || got.MissingStreak != 1 {
		t.Fatalf("stale listing should delist on its first miss: %+v", got)
	}
}

func TestPlanSkipsDelisted(t *testing.T) {
	tr := NewTracker(DefaultPolicy())
	existing := []domain.ListingRecord{{Source: "pickles", SourceListingID: "A", Status: domain.ListingDelisted, MissingStreak: 2}}
	if plan := tr.Plan(run("r", t0, domain.RunCompleted), existing, nil); len(plan.Listings) != 0 {
		t.Fatalf("delisted listings must not keep accruing misses: %+v", plan.Listings)
	}

	plan := tr.Plan(run("r", t0, domain.RunCompleted), existing, []domain.ListingRecord{rec("A")})
	if plan.Run.Returned != 1 || plan.Listings[0].Status != domain.ListingActive {
		t.Fatalf("delisted listing seen again should return: %+v", plan)
	}
}
