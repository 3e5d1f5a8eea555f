package handler

import (
	"net/http"

	"github.com/sendiq/sendiq/internal/service"
)

// ScheduleSend accepts a deferred send
func (h *Handler) ScheduleSend(w http.ResponseWriter, r *http.Request) {
	var req service.ScheduleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	entry, err := h.schedulerSvc.Schedule(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "schedule", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":       true,
		"scheduledSend": entry,
	})
}

// ListScheduled returns every pending scheduled send
func (h *Handler) ListScheduled(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scheduledSends": h.schedulerSvc.List(),
	})
}

// CancelScheduled discards every pending scheduled send
func (h *Handler) CancelScheduled(w http.ResponseWriter, r *http.Request) {
	if err := h.schedulerSvc.CancelAll(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("failed to clear scheduled sends")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to clear scheduled sends")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
