package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int { return &v }

// memListings backs ListingStore and CrawlRunStore.
type memListings struct {
	mu       sync.Mutex
	nextID   int64
	byKey    map[domain.ListingKey]domain.ListingRecord
	runs     map[string]domain.CrawlRun
	events   []domain.PresenceEvent
	listErr  error
	commitFn func(domain.RunPlan) error
}

func newMemListings() *memListings {
	return &memListings{byKey: map[domain.ListingKey]domain.ListingRecord{}, runs: map[string]domain.CrawlRun{}}
}

func (m *memListings) put(l domain.ListingRecord) domain.ListingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == 0 {
		m.nextID++
		l.ID = m.nextID
	}
	m.byKey[l.Key()] = l
	return l
}

func (m *memListings) ListBySource(_ context.Context, source string) ([]domain.ListingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.ListingRecord
	for _, l := range m.byKey {
		if l.Source == source {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memListings) ListVisible(_ context.Context, q domain.ListingQuery) ([]domain.ListingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.ListingRecord
	for _, l := range m.byKey {
		if !l.Status.Visible() {
			continue
		}
		if q.Make != "" && l.Identity.Make != q.Make {
			continue
		}
		if q.Model != "" && l.Identity.Model != q.Model {
			continue
		}
		if len(q.Sources) > 0 && !slices.Contains(q.Sources, l.Source) {
			continue
		}
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b domain.ListingRecord) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *memListings) GetByID(_ context.Context, id int64) (domain.ListingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.byKey {
		if l.ID == id {
			return l, nil
		}
	}
	return domain.ListingRecord{}, domain.ErrNotFound
}

func (m *memListings) get(source, id string) (domain.ListingRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byKey[domain.ListingKey{Source: source, SourceListingID: id}]
	return l, ok
}

func (m *memListings) CommitRun(_ context.Context, plan domain.RunPlan) error {
	if m.commitFn != nil {
		if err := m.commitFn(plan); err != nil {
			return err
		}
	}
	m.mu.Lock()
	if _, ok := m.runs[plan.Run.ID]; ok {
		m.mu.Unlock()
		return domain.ErrRunAlreadyApplied
	}
	m.runs[plan.Run.ID] = plan.Run
	m.events = append(m.events, plan.Events...)
	m.mu.Unlock()
	for _, l := range plan.Listings {
		m.put(l)
	}
	return nil
}

func (m *memListings) ListRecent(_ context.Context, source string, limit int) ([]domain.CrawlRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CrawlRun
	for _, r := range m.runs {
		if r.Source == source {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type staticCodes struct{ table domain.CodeTable }

func (s staticCodes) Get(context.Context) (domain.CodeTable, error) { return s.table, nil }
func (s staticCodes) Invalidate(context.Context) error { return nil }

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocks() *memLocks { return &memLocks{held: map[string]bool{}} }

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type memArchiver struct {
	mu         sync.Mutex
	batches    map[string]domain.CrawlBatch
	candidates map[string][]domain.MatchCandidate
}

func newMemArchiver() *memArchiver {
	return &memArchiver{batches: map[string]domain.CrawlBatch{}, candidates: map[string][]domain.MatchCandidate{}}
}

func (a *memArchiver) ArchiveBatch(_ context.Context, b domain.CrawlBatch) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	path := "crawl-runs/" + b.Source + "/" + b.RunID + ".json"
	a.batches[path] = b
	return path, nil
}

func (a *memArchiver) ArchiveCandidates(_ context.Context, huntID string, _ int64, set []domain.MatchCandidate) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.candidates[huntID] = set
	return "candidates/" + huntID, nil
}

func (a *memArchiver) LoadBatch(_ context.Context, path string) (domain.CrawlBatch, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.batches[path]
	if !ok {
		return domain.CrawlBatch{}, domain.ErrNotFound
	}
	return b, nil
}

func (a *memArchiver) ListBatches(_ context.Context, prefix string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for p := range a.batches {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out, nil
}

type memHunts struct {
	mu       sync.Mutex
	hunts    map[string]domain.Hunt
	scanned  map[string]time.Time
	versions map[string]int64
}

func newMemHunts(hs ...domain.Hunt) *memHunts {
	m := &memHunts{hunts: map[string]domain.Hunt{}, scanned: map[string]time.Time{}, versions: map[string]int64{}}
	for _, h := range hs {
		m.hunts[h.ID] = h
	}
	return m
}

func (m *memHunts) GetByID(_ context.Context, id string) (domain.Hunt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hunts[id]
	if !ok {
		return domain.Hunt{}, domain.ErrNotFound
	}
	return h, nil
}

func (m *memHunts) ListActive(context.Context) ([]domain.Hunt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Hunt
	for _, h := range m.hunts {
		if h.Active {
			out = append(out, h)
		}
	}
	slices.SortFunc(out, func(a, b domain.Hunt) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *memHunts) NextCriteriaVersion(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[id]++
	h := m.hunts[id]
	h.CriteriaVersion = m.versions[id]
	m.hunts[id] = h
	return m.versions[id], nil
}

func (m *memHunts) MarkScanned(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanned[id] = at
	h := m.hunts[id]
	h.LastScanAt = &at
	m.hunts[id] = h
	return nil
}

type memPrints struct {
	mu        sync.Mutex
	byAccount map[string][]domain.WinnerFingerprint
	best      map[string]domain.BestSale
	bestCalls int
}

func (m *memPrints) TopForAccount(_ context.Context, acct string, limit int) ([]domain.WinnerFingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fps := m.byAccount[acct]
	if limit > 0 && len(fps) > limit {
		fps = fps[:limit]
	}
	return fps, nil
}

func (m *memPrints) BestHistoricalSale(_ context.Context, acct, vehicleMake, model string) (domain.BestSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bestCalls++
	b, ok := m.best[acct+"/"+vehicleMake+"/"+model]
	if !ok {
		return domain.BestSale{}, domain.ErrNotFound
	}
	return b, nil
}

func (m *memPrints) ReplaceForAccount(_ context.Context, acct string, fps []domain.WinnerFingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byAccount == nil {
		m.byAccount = map[string][]domain.WinnerFingerprint{}
	}
	m.byAccount[acct] = fps
	return nil
}

type memBestSales struct {
	mu          sync.Mutex
	entries     map[string]*domain.BestSale
	invalidated []string
}

func newMemBestSales() *memBestSales {
	return &memBestSales{entries: map[string]*domain.BestSale{}}
}

func (c *memBestSales) Get(_ context.Context, acct, vehicleMake, model string) (domain.BestSale, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[acct+"/"+vehicleMake+"/"+model]
	if !ok {
		return domain.BestSale{}, false, nil
	}
	if b == nil {
		return domain.BestSale{}, true, domain.ErrNotFound
	}
	return *b, true, nil
}

func (c *memBestSales) Set(_ context.Context, acct string, sale domain.BestSale) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[acct+"/"+sale.Make+"/"+sale.Model] = &sale
	return nil
}

func (c *memBestSales) SetMiss(_ context.Context, acct, vehicleMake, model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[acct+"/"+vehicleMake+"/"+model] = nil
	return nil
}

func (c *memBestSales) InvalidateAccount(_ context.Context, acct string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, acct)
	for k := range c.entries {
		if strings.HasPrefix(k, acct+"/") {
			delete(c.entries, k)
		}
	}
	return nil
}

type memCandidates struct {
	mu       sync.Mutex
	sets     map[string][]domain.MatchCandidate
	versions map[string]int64
	replace  func(huntID string, version int64) error
}

func newMemCandidates() *memCandidates {
	return &memCandidates{sets: map[string][]domain.MatchCandidate{}, versions: map[string]int64{}}
}

func (m *memCandidates) ReplaceSet(_ context.Context, huntID string, version int64, set []domain.MatchCandidate) error {
	if m.replace != nil {
		if err := m.replace(huntID, version); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if version < m.versions[huntID] {
		return domain.ErrStaleVersion
	}
	m.versions[huntID] = version
	m.sets[huntID] = slices.Clone(set)
	return nil
}

func (m *memCandidates) ListByHunt(_ context.Context, huntID string, includeIgnored bool) ([]domain.MatchCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MatchCandidate
	for _, c := range m.sets[huntID] {
		if !includeIgnored && c.Decision == domain.DecisionIgnore {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.AlertEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev domain.AlertEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

type recordingBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *recordingBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *recordingBus) StreamRead(context.Context, string, string, int, time.Duration) ([]domain.StreamMessage, error) {
	return nil, nil
}
