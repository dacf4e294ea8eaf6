package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// VerifyTrigger requests one extra verification batch. It reports false
// when a request is already pending.
type VerifyTrigger func(ctx context.Context) (bool, error)

// VerifyHandler serves the verification trigger endpoint.
type VerifyHandler struct {
	trigger VerifyTrigger
	logger  *slog.Logger
}

// NewVerifyHandler creates a VerifyHandler. A nil trigger means no verify
// loop is reachable from this process.
func NewVerifyHandler(trigger VerifyTrigger, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{trigger: trigger, logger: logHandler(logger, "verify")}
}

// Trigger enqueues one verification batch.
// POST /api/verify/trigger
func (h *VerifyHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "verification is not reachable from this process")
		return
	}
	h.logger.InfoContext(r.Context(), "verification trigger requested")
	accepted, err := h.trigger(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "verification trigger failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "verification trigger unavailable")
		return
	}
	status := "accepted"
	if !accepted {
		status = "already_pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       status,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
