package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
	"github.com/alanyoungcy/carbitrage/internal/lifecycle"
)

func rawListing(id string, price any) domain.RawListing {
	return domain.RawListing{Fields: map[string]any{
		"id":      id,
		"url":     "https://auction.example/lot/" + id,
		"make":    "Toyota",
		"model":   "Hilux",
		"variant": "SR5",
		"drive":   "4x4",
		"year":    "2018",
		"km":      "48,000 km",
		"price":   price,
	}}
}

func newIngest(t *testing.T) (*IngestService, *memListings, *memLocks, *memArchiver) {
	t.Helper()
	store := newMemListings()
	locks := newMemLocks()
	arch := newMemArchiver()
	svc := NewIngestService(store, store, staticCodes{}, locks, arch,
		lifecycle.NewTracker(lifecycle.DefaultPolicy()), time.Minute, discardLogger())
	return svc, store, locks, arch
}

func batch(run string, at time.Time, ok bool, recs ...domain.RawListing) domain.CrawlBatch {
	return domain.CrawlBatch{RunID: run, Source: "pickles", StartedAt: at.Add(-time.Minute), FinishedAt: at, OK: ok, Records: recs}
}

func TestApplyRunPresenceLifecycle(t *testing.T) {
	svc, store, _, arch := newIngest(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	run, err := svc.ApplyRun(ctx, batch("r1", t0, true,
		rawListing("A", "$22,000"),
		rawListing("B", 25000),
		domain.RawListing{Fields: map[string]any{"make": "Ford"}},
	))
	if err != nil {
		t.Fatal(err)
	}
	if run.New != 2 || run.Seen != 2 || run.Dropped != 1 {
		t.Fatalf("run 1 = %+v", run)
	}
	a, ok := store.get("pickles", "A")
	if !ok || a.Identity.Make != "TOYOTA" || a.Identity.Drivetrain != domain.Drivetrain4WD || *a.AskingPrice != 22000 {
		t.Fatalf("listing A = %+v", a)
	}
	if len(arch.batches) != 1 {
		t.Fatalf("archived %d batches, want 1", len(arch.batches))
	}

	run, err = svc.ApplyRun(ctx, batch("r2", t0.Add(time.Hour), true, rawListing("A", "$22,000")))
	if err != nil {
		t.Fatal(err)
	}
	if run.WentMissing != 1 || run.Delisted != 0 {
		t.Fatalf("run 2 = %+v", run)
	}
	b, _ := store.get("pickles", "B")
	if b.Status != domain.ListingMissingPending || b.MissingStreak != 1 || !b.Status.Visible() {
		t.Fatalf("B after one miss = %+v", b)
	}

	run, err = svc.ApplyRun(ctx, batch("r3", t0.Add(2*time.Hour), true, rawListing("A", "$21,500")))
	if err != nil {
		t.Fatal(err)
	}
	b, _ = store.get("pickles", "B")
	if run.Delisted != 1 || b.Status != domain.ListingDelisted || b.Status.Visible() {
		t.Fatalf("run 3 = %+v, B = %+v", run, b)
	}
	a, _ = store.get("pickles", "A")
	if *a.AskingPrice != 21500 || !a.FirstSeenAt.Equal(t0) {
		t.Fatalf("A after price change = %+v", a)
	}

	run, err = svc.ApplyRun(ctx, batch("r4", t0.Add(3*time.Hour), true, rawListing("A", 21500), rawListing("B", 24000)))
	if err != nil {
		t.Fatal(err)
	}
	b, _ = store.get("pickles", "B")
	if run.Returned != 1 || b.Status != domain.ListingActive || b.MissingStreak != 0 {
		t.Fatalf("run 4 = %+v, B = %+v", run, b)
	}

	counts := map[domain.PresenceEventType]int{}
	for _, ev := range store.events {
		counts[ev.Type]++
	}
	if counts[domain.PresenceFirstSeen] != 2 || counts[domain.PresenceWentMissing] != 1 || counts[domain.PresenceReturned] != 1 {
		t.Fatalf("events = %v", counts)
	}
}

func TestApplyRunFailedRunKeepsStreaks(t *testing.T) {
	svc, store, _, _ := newIngest(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	if _, err := svc.ApplyRun(ctx, batch("r1", t0, true, rawListing("A", 1), rawListing("B", 2))); err != nil {
		t.Fatal(err)
	}
	run, err := svc.ApplyRun(ctx, batch("r2", t0.Add(time.Hour), false, rawListing("A", 1)))
	if err != nil {
		t.Fatal(err)
	}
	if run.Outcome != domain.RunFailed || run.WentMissing != 0 {
		t.Fatalf("failed run = %+v", run)
	}
	b, _ := store.get("pickles", "B")
	if b.MissingStreak != 0 || b.Status != domain.ListingActive {
		t.Fatalf("B after failed run = %+v", b)
	}
}

func TestApplyRunIdempotent(t *testing.T) {
	svc, store, _, _ := newIngest(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	b := batch("r1", t0, true, rawListing("A", 1))

	if _, err := svc.ApplyRun(ctx, b); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ApplyRun(ctx, b); !errors.Is(err, domain.ErrRunAlreadyApplied) {
		t.Fatalf("re-apply err = %v", err)
	}
	if len(store.events) != 1 {
		t.Fatalf("events after re-apply = %d, want 1", len(store.events))
	}
}

func TestApplyRunLockHeld(t *testing.T) {
	svc, _, locks, _ := newIngest(t)
	ctx := context.Background()
	release, err := locks.Acquire(ctx, "ingest:pickles", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if _, err := svc.ApplyRun(ctx, batch("r1", time.Now(), true)); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}
}

func TestApplyRunValidation(t *testing.T) {
	svc, store, _, _ := newIngest(t)
	ctx := context.Background()

	if _, err := svc.ApplyRun(ctx, domain.CrawlBatch{RunID: "r"}); !errors.Is(err, domain.ErrInvalidBatch) {
		t.Fatalf("missing source err = %v", err)
	}

	run, err := svc.ApplyRun(ctx, domain.CrawlBatch{Source: "pickles", OK: true, Records: []domain.RawListing{rawListing("A", 1)}})
	if err != nil {
		t.Fatal(err)
	}
	if run.ID == "" || run.FinishedAt.IsZero() {
		t.Fatalf("run = %+v, want generated id and finish time", run)
	}

	foreign := rawListing("X", 1)
	foreign.Source = "manheim"
	run, err = svc.ApplyRun(ctx, domain.CrawlBatch{RunID: "r2", Source: "pickles", Records: []domain.RawListing{foreign}})
	if err != nil {
		t.Fatal(err)
	}
	if run.Dropped != 1 {
		t.Fatalf("foreign record not dropped: %+v", run)
	}
	if _, ok := store.get("manheim", "X"); ok {
		t.Fatal("foreign record stored")
	}
}

func TestApplyRunStoreFailure(t *testing.T) {
	svc, store, locks, _ := newIngest(t)
	store.listErr = errors.New("connection refused")
	if _, err := svc.ApplyRun(context.Background(), batch("r1", time.Now(), true)); err == nil {
		t.Fatal("expected store error")
	}
	if len(locks.held) != 0 {
		t.Fatal("lock not released after failure")
	}
}

func TestReplay(t *testing.T) {
	svc, store, _, arch := newIngest(t)
	ctx := context.Background()
	b := batch("r1", time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), true, rawListing("A", 1))
	path, _ := arch.ArchiveBatch(ctx, b)

	run, err := svc.Replay(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if run.New != 1 {
		t.Fatalf("replayed run = %+v", run)
	}
	if _, ok := store.get("pickles", "A"); !ok {
		t.Fatal("replayed listing missing")
	}
	if _, err := svc.Replay(ctx, "crawl-runs/none.json"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing replay err = %v", err)
	}
}

func TestReplayAllSkipsCommittedRuns(t *testing.T) {
	svc, store, _, arch := newIngest(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	first := batch("r1", t0, true, rawListing("A", 1))
	if _, err := svc.ApplyRun(ctx, first); err != nil {
		t.Fatal(err)
	}
	arch.ArchiveBatch(ctx, first)
	arch.ArchiveBatch(ctx, batch("r2", t0.Add(time.Hour), true, rawListing("A", 1), rawListing("B", 2)))

	sum, err := svc.ReplayAll(ctx, "crawl-runs/pickles/")
	if err != nil {
		t.Fatal(err)
	}
	if sum.AlreadyApplied != 1 || len(sum.Applied) != 1 || sum.Applied[0] != "crawl-runs/pickles/r2.json" {
		t.Fatalf("summary = %+v", sum)
	}
	if _, ok := store.get("pickles", "B"); !ok {
		t.Fatal("listing from replayed run missing")
	}

	sum, err = svc.ReplayAll(ctx, "crawl-runs/other/")
	if err != nil || len(sum.Applied) != 0 || sum.AlreadyApplied != 0 {
		t.Fatalf("empty prefix = %+v, %v", sum, err)
	}
}
