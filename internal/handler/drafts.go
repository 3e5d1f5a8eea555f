package handler

import (
	"net/http"
)

// DeleteMatchingRequest is the body of POST /api/v1/drafts/delete-matching
type DeleteMatchingRequest struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// DeleteRecentDraft deletes the newest draft
func (h *Handler) DeleteRecentDraft(w http.ResponseWriter, r *http.Request) {
	res, err := h.draftSvc.DeleteMostRecent(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "delete_recent_draft", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"deleted": res.Deleted,
		"draftId": res.DraftID,
		"method":  res.Method,
	})
}

// DeleteMatchingDraft deletes the draft matching the intercepted subject and body
func (h *Handler) DeleteMatchingDraft(w http.ResponseWriter, r *http.Request) {
	var req DeleteMatchingRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	res, err := h.draftSvc.DeleteMatching(r.Context(), req.Subject, req.Content)
	if err != nil {
		h.writeServiceError(w, r, "delete_matching_draft", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"deleted": res.Deleted,
		"draftId": res.DraftID,
		"method":  res.Method,
	})
}
