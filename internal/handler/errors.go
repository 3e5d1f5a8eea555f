package handler

import (
	"errors"
	"net/http"

	"github.com/sendiq/sendiq/internal/auth"
	"github.com/sendiq/sendiq/internal/service"
)

var errorTypeStatus = map[service.ErrorType]int{
	service.ErrorTypeAuth:       http.StatusUnauthorized,
	service.ErrorTypePermission: http.StatusForbidden,
	service.ErrorTypeRateLimit:  http.StatusTooManyRequests,
	service.ErrorTypeServer:     http.StatusBadGateway,
	service.ErrorTypeUnknown:    http.StatusInternalServerError,
}

// writeServiceError renders err from the service layer. op names the failed
// operation in logs.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var authErr *auth.AuthorizationRequiredError

	switch {
	case errors.Is(err, service.ErrNoRecipients),
		errors.Is(err, service.ErrInvalidRecipient),
		errors.Is(err, service.ErrSendTimeTooSoon):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, service.ErrAutoInterceptDisabled):
		writeError(w, http.StatusConflict, "auto_intercept_disabled", "Auto-intercept is disabled")
	case errors.Is(err, service.ErrConsentUnavailable):
		writeError(w, http.StatusNotImplemented, "consent_unavailable", "Consent flow is not available for this credential type")
	case errors.As(err, &authErr):
		writeErrorWithDetails(w, r, http.StatusUnauthorized, string(service.ErrorTypeAuth), "Authorization required",
			map[string]interface{}{"consentUrl": authErr.ConsentURL})
	default:
		c := service.ClassifyError(err)
		status := errorTypeStatus[c.Type]
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("op", op).Msg("request failed")
		} else {
			h.log.Warn().Err(err).Str("op", op).Msg("request failed")
		}
		writeErrorWithDetails(w, r, status, string(c.Type), c.Message,
			map[string]interface{}{"cause": c.Details})
	}
}
