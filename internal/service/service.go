package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sendiq/sendiq/internal/email"
	"github.com/sendiq/sendiq/internal/model"
)

// Request validation errors
var (
	ErrNoRecipients          = errors.New("at least one recipient is required")
	ErrInvalidRecipient      = errors.New("recipient email is required")
	ErrSendTimeTooSoon       = errors.New("scheduled time must be at least one minute in the future")
	ErrAutoInterceptDisabled = errors.New("auto-intercept is disabled")
)

// Credentials hands out mailbox credentials. Implemented by auth.CredentialProvider.
type Credentials interface {
	Token(ctx context.Context, interactive bool) (*oauth2.Token, error)
	Invalidate(tok *oauth2.Token)
}

// Clock returns the current time
type Clock func() time.Time

// resolveRecipients validates recipients and fills in bodies from the template
// for recipients that did not bring a personalized body of their own.
func resolveRecipients(recipients []model.Recipient, bodyTemplate string) ([]model.Recipient, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	out := make([]model.Recipient, len(recipients))
	for i, r := range recipients {
		r.Email = strings.TrimSpace(r.Email)
		if r.Email == "" {
			return nil, fmt.Errorf("recipient %d: %w", i, ErrInvalidRecipient)
		}
		if r.BodyHTML == "" && bodyTemplate != "" {
			r.BodyHTML = email.Personalize(bodyTemplate, r.Name)
		}
		out[i] = r
	}
	return out, nil
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
