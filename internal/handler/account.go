package handler

import (
	"net/http"

	"github.com/sendiq/sendiq/internal/model"
)

// AuthorizeRequest is the body of POST /api/v1/authorize
type AuthorizeRequest struct {
	Interactive *bool `json:"interactive,omitempty"`
}

// Authorize acquires a mailbox credential, interactively unless asked not to
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	req := AuthorizeRequest{}
	if r.ContentLength > 0 {
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
			return
		}
	}
	interactive := req.Interactive == nil || *req.Interactive

	id, err := h.accountSvc.Authorize(r.Context(), interactive)
	if err != nil {
		h.writeServiceError(w, r, "authorize", err)
		return
	}
	writeIdentity(w, id)
}

// Account returns the mailbox identity without prompting for consent
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	id, err := h.accountSvc.Account(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "account", err)
		return
	}
	writeIdentity(w, id)
}

// ConsentURL returns the OAuth consent URL
func (h *Handler) ConsentURL(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		state = "sendiq"
	}

	url, err := h.accountSvc.ConsentURL(state)
	if err != nil {
		h.writeServiceError(w, r, "consent_url", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// ConsentCallbackRequest is the body of POST /api/v1/authorize/callback
type ConsentCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}

// ConsentCallback completes the OAuth consent flow with an authorization code
func (h *Handler) ConsentCallback(w http.ResponseWriter, r *http.Request) {
	var req ConsentCallbackRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Authorization code is required")
		return
	}

	id, err := h.accountSvc.CompleteConsent(r.Context(), req.Code)
	if err != nil {
		h.writeServiceError(w, r, "consent_callback", err)
		return
	}
	writeIdentity(w, id)
}

func writeIdentity(w http.ResponseWriter, id *model.Identity) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"email":   id.Email,
		"name":    id.Name,
		"picture": id.Picture,
	})
}

// GetSettings returns the stored user settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.accountSvc.Settings(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load settings")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings replaces the stored user settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req model.Settings
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	s, err := h.accountSvc.UpdateSettings(r.Context(), req)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to save settings")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// RecentActivity returns the bounded activity log, newest first
func (h *Handler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := h.accountSvc.RecentActivity(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load activity")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load activity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"activity": entries})
}
