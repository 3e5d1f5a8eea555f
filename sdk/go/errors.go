package sendiq

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors returned by the SDK.
var (
	// ErrUnauthorized is returned when the API token is missing, invalid or expired.
	ErrUnauthorized = errors.New("sendiq: unauthorized")

	// ErrAutoInterceptDisabled is returned by SendNow when the user turned auto-intercept off.
	ErrAutoInterceptDisabled = errors.New("sendiq: auto-intercept is disabled")
)

// APIError represents an error response from the SendIQ API.
type APIError struct {
	StatusCode int                    `json:"-"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sendiq: API error %d [%s]: %s", e.StatusCode, e.Code, e.Message)
}

// ConsentURL returns the consent URL carried by an authorization error, if any.
func (e *APIError) ConsentURL() string {
	if u, ok := e.Details["consentUrl"].(string); ok {
		return u
	}
	return ""
}

// Unwrap maps well-known error codes onto the SDK sentinels.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "unauthorized", "token_invalid":
		return ErrUnauthorized
	case "auto_intercept_disabled":
		return ErrAutoInterceptDisabled
	}
	return nil
}

// apiErrorWrapper matches the SendIQ API error envelope.
type apiErrorWrapper struct {
	Error *APIError `json:"error"`
}

func parseAPIError(statusCode int, body []byte) error {
	var wrapper apiErrorWrapper
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error != nil && wrapper.Error.Code != "" {
		wrapper.Error.StatusCode = statusCode
		return wrapper.Error
	}

	return &APIError{
		StatusCode: statusCode,
		Code:       "unknown",
		Message:    string(body),
	}
}

// IsAPIError checks whether err is an APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
