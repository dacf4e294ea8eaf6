package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// ListingHandler serves read-only views of listings, crawl runs and the
// audit log.
type ListingHandler struct {
	listings domain.ListingStore
	presence domain.PresenceEventStore
	runs     domain.CrawlRunStore
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(listings domain.ListingStore, presence domain.PresenceEventStore, runs domain.CrawlRunStore, audit domain.AuditStore, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		listings: listings,
		presence: presence,
		runs:     runs,
		audit:    audit,
		logger:   logHandler(logger, "listing"),
	}
}

type presenceView struct {
	RunID      string    `json:"run_id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// GetListing returns one listing with its presence history.
// GET /api/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	l, err := h.listings.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	events, err := h.presence.ListByListing(r.Context(), l.Key())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	history := make([]presenceView, 0, len(events))
	for _, e := range events {
		history = append(history, presenceView{RunID: e.RunID, Type: string(e.Type), OccurredAt: e.OccurredAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                id,
		"source":            l.Source,
		"source_listing_id": l.SourceListingID,
		"url":               l.URL,
		"vehicle":           l.Identity.Summary(),
		"asking_price":      l.AskingPrice,
		"location":          l.Location,
		"status":            l.Status,
		"missing_streak":    l.MissingStreak,
		"first_seen_at":     l.FirstSeenAt,
		"last_seen_at":      l.LastSeenAt,
		"lifecycle_status":  l.LifecycleStatus,
		"lifecycle_reason":  l.LifecycleReason,
		"presence":          history,
	})
}

// ListRuns returns recent crawl runs, optionally for one source.
// GET /api/crawl-runs
func (h *ListingHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.ListRecent(r.Context(), r.URL.Query().Get("source"), queryLimit(r, 20, 200))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if runs == nil {
		runs = []domain.CrawlRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// ListAudit returns the newest audit entries.
// GET /api/audit
func (h *ListingHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), domain.ListOpts{Limit: queryLimit(r, 50, 500)})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":         e.ID,
			"event":      e.Event,
			"detail":     e.Detail,
			"created_at": e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// queryLimit parses ?limit=, clamped to [1, ceiling].
func queryLimit(r *http.Request, def, ceiling int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, ceiling)
}
