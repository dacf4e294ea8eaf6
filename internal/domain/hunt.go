package domain

import (
	"slices"
	"time"
)

// Hunt is a dealer-defined standing search.
type Hunt struct {
	ID              string
	AccountID       string
	Make            string
	Model           string
	VariantFamily   string
	YearMin         *int
	YearMax         *int
	KmMin           *int
	KmMax           *int
	SourcesEnabled  []string
	ScanInterval    time.Duration
	LastScanAt      *time.Time
	CriteriaVersion int64
	Active          bool
}

// Due reports whether the hunt should be rebuilt at now.
func (h Hunt) Due(now time.Time) bool {
	if !h.Active {
		return false
	}
	if h.LastScanAt == nil {
		return true
	}
	return !h.LastScanAt.Add(h.ScanInterval).After(now)
}

// SourceEnabled reports whether listings from source are in scope. An empty
// list enables every source.
func (h Hunt) SourceEnabled(source string) bool {
	return len(h.SourcesEnabled) == 0 || slices.Contains(h.SourcesEnabled, source)
}
