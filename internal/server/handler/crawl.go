package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// RunIngester applies crawl batches.
type RunIngester interface {
	ApplyRun(ctx context.Context, batch domain.CrawlBatch) (domain.CrawlRun, error)
	Replay(ctx context.Context, path string) (domain.CrawlRun, error)
	ReplayAll(ctx context.Context, prefix string) (domain.ReplaySummary, error)
}

// CrawlHandler accepts crawl run batches from crawlers.
type CrawlHandler struct {
	ingest RunIngester
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewCrawlHandler creates a CrawlHandler. bus may be nil, which disables
// queued submission.
func NewCrawlHandler(ingest RunIngester, bus domain.SignalBus, logger *slog.Logger) *CrawlHandler {
	return &CrawlHandler{ingest: ingest, bus: bus, logger: logHandler(logger, "crawl")}
}

// Submit applies a crawl batch. With queue=true the batch is appended to the
// crawl-run stream and applied by the ingest consumer instead.
// POST /api/crawl-runs
func (h *CrawlHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var batch domain.CrawlBatch
	if err := decodeJSON(w, r, &batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(batch.Source) == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	if queryBool(r, "queue") {
		if h.bus == nil {
			writeError(w, http.StatusServiceUnavailable, "queued submission not configured")
			return
		}
		payload, err := json.Marshal(batch)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unencodable batch")
			return
		}
		if err := h.bus.StreamAppend(r.Context(), domain.StreamCrawlRuns, payload); err != nil {
			writeDomainError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "queued",
			"source": batch.Source,
			"run_id": batch.RunID,
		})
		return
	}

	run, err := h.ingest.ApplyRun(r.Context(), batch)
	if err != nil {
		if errors.Is(err, domain.ErrRunAlreadyApplied) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "already_applied", "run_id": batch.RunID})
			return
		}
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Replay re-applies an archived batch by its blob path. A path ending in a
// slash replays every batch under that prefix.
// POST /api/crawl-runs/replay
func (h *CrawlHandler) Replay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if strings.HasSuffix(req.Path, "/") {
		sum, err := h.ingest.ReplayAll(r.Context(), req.Path)
		if err != nil {
			writeDomainError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
		return
	}
	run, err := h.ingest.Replay(r.Context(), req.Path)
	if err != nil {
		if errors.Is(err, domain.ErrRunAlreadyApplied) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "already_applied", "path": req.Path})
			return
		}
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
