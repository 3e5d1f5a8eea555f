package service

import (
	"errors"
	"net/http"

	"github.com/sendiq/sendiq/internal/auth"
	"github.com/sendiq/sendiq/internal/email"
)

// ErrorType classifies failures reported back to the UI layer
type ErrorType string

// Error taxonomy
const (
	ErrorTypeAuth       ErrorType = "auth_error"
	ErrorTypePermission ErrorType = "permission_error"
	ErrorTypeRateLimit  ErrorType = "rate_limit_error"
	ErrorTypeServer     ErrorType = "server_error"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// ClassifiedError is a user-facing rendering of an error
type ClassifiedError struct {
	Type    ErrorType
	Message string
	Details string
}

// ClassifyError maps err onto the error taxonomy with a human-readable message
func ClassifyError(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{Type: ErrorTypeUnknown}
	}

	c := ClassifiedError{Type: ErrorTypeUnknown, Message: err.Error(), Details: err.Error()}
	status := email.StatusCode(err)

	switch {
	case errors.Is(err, auth.ErrAuthorizationRequired) || status == http.StatusUnauthorized:
		c.Type = ErrorTypeAuth
		c.Message = "Authentication failed - please refresh the page and try again"
	case status == http.StatusForbidden:
		c.Type = ErrorTypePermission
		c.Message = "Permission denied - Gmail API access may be restricted"
	case status == http.StatusTooManyRequests:
		c.Type = ErrorTypeRateLimit
		c.Message = "Rate limit exceeded - please wait a moment and try again"
	case status >= http.StatusInternalServerError:
		c.Type = ErrorTypeServer
		c.Message = "Gmail server error - please try again later"
	}
	return c
}
