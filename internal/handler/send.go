package handler

import (
	"net/http"

	"github.com/sendiq/sendiq/internal/service"
)

// SendNow starts a mass send and returns immediately with its task id.
// Completion is reported on the event stream.
func (h *Handler) SendNow(w http.ResponseWriter, r *http.Request) {
	var req service.MassSendRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	task, err := h.massSendSvc.Start(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "send", err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"taskId":  task.ID(),
	})
}
