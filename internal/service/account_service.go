package service

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/sendiq/sendiq/internal/email"
	"github.com/sendiq/sendiq/internal/logger"
	"github.com/sendiq/sendiq/internal/model"
	"github.com/sendiq/sendiq/internal/repository"
)

// ErrConsentUnavailable is returned when the credential source has no consent flow
var ErrConsentUnavailable = errors.New("consent flow is not available")

// ConsentFlow is the OAuth2 authorization-code flow. Implemented by auth.CredentialProvider.
type ConsentFlow interface {
	AuthCodeURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// AccountService resolves the mailbox owner and manages stored preferences
type AccountService struct {
	creds     Credentials
	consent   ConsentFlow
	transport email.Transport
	settings  *repository.SettingsRepository
	activity  *repository.ActivityRepository
	log       *logger.Logger
}

// NewAccountService creates a new AccountService. consent may be nil.
func NewAccountService(
	creds Credentials,
	consent ConsentFlow,
	transport email.Transport,
	settings *repository.SettingsRepository,
	activity *repository.ActivityRepository,
	log *logger.Logger,
) *AccountService {
	return &AccountService{
		creds:     creds,
		consent:   consent,
		transport: transport,
		settings:  settings,
		activity:  activity,
		log:       log.WithComponent("account"),
	}
}

// Authorize acquires a credential and returns the mailbox identity. An identity
// lookup failure still counts as authorized and yields empty fields.
func (a *AccountService) Authorize(ctx context.Context, interactive bool) (*model.Identity, error) {
	cred, err := a.creds.Token(ctx, interactive)
	if err != nil {
		return nil, err
	}

	id, err := a.transport.Identity(ctx, cred)
	if err != nil {
		if email.IsInvalidCredential(err) {
			a.creds.Invalidate(cred)
		}
		a.log.Warn().Err(err).Msg("identity lookup failed")
		return &model.Identity{}, nil
	}
	return id, nil
}

// Account returns the identity using only cached or silently renewable credentials
func (a *AccountService) Account(ctx context.Context) (*model.Identity, error) {
	return a.Authorize(ctx, false)
}

// ConsentURL returns where the user grants mailbox access
func (a *AccountService) ConsentURL(state string) (string, error) {
	if a.consent == nil {
		return "", ErrConsentUnavailable
	}
	return a.consent.AuthCodeURL(state)
}

// CompleteConsent exchanges the authorization code and returns the new identity
func (a *AccountService) CompleteConsent(ctx context.Context, code string) (*model.Identity, error) {
	if a.consent == nil {
		return nil, ErrConsentUnavailable
	}
	if _, err := a.consent.Exchange(ctx, code); err != nil {
		return nil, err
	}
	a.log.Info().Msg("mailbox authorization granted")
	return a.Authorize(ctx, false)
}

// Settings returns the stored user settings
func (a *AccountService) Settings(ctx context.Context) (model.Settings, error) {
	return a.settings.Get(ctx)
}

// UpdateSettings stores s
func (a *AccountService) UpdateSettings(ctx context.Context, s model.Settings) (model.Settings, error) {
	if err := a.settings.Save(ctx, s); err != nil {
		return model.Settings{}, err
	}
	a.log.Info().Bool("auto_intercept", s.AutoIntercept).Msg("settings updated")
	return s, nil
}

// RecentActivity returns the activity log, newest first
func (a *AccountService) RecentActivity(ctx context.Context) ([]model.Activity, error) {
	return a.activity.List(ctx)
}
