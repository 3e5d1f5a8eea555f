package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauthjwt "golang.org/x/oauth2/jwt"
	"google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"

	"github.com/sendiq/sendiq/internal/config"
	"github.com/sendiq/sendiq/internal/logger"
	"github.com/sendiq/sendiq/internal/repository"
)

// ErrAuthorizationRequired means no usable credential is available without user consent.
var ErrAuthorizationRequired = errors.New("authorization required")

// ErrNotConfigured is returned when neither OAuth client nor service account credentials are set.
var ErrNotConfigured = errors.New("gmail: client_id or credentials_json is required")

// Scopes requested for the mailbox credential.
var Scopes = []string{
	gmail.GmailSendScope,
	gmail.GmailComposeScope,
	oauth2api.UserinfoEmailScope,
	oauth2api.UserinfoProfileScope,
}

// AuthorizationRequiredError carries the consent URL the user must visit.
type AuthorizationRequiredError struct {
	ConsentURL string
}

func (e *AuthorizationRequiredError) Error() string {
	return "authorization required: grant access at " + e.ConsentURL
}

func (e *AuthorizationRequiredError) Unwrap() error {
	return ErrAuthorizationRequired
}

// TokenStore persists the mailbox token across restarts.
// Implemented by repository.TokenRepository.
type TokenStore interface {
	LoadToken(ctx context.Context) (*oauth2.Token, error)
	SaveToken(ctx context.Context, tok *oauth2.Token) error
	DeleteToken(ctx context.Context) error
}

// CredentialProvider hands out mailbox access tokens. A valid cached token is returned
// as is; otherwise it renews silently from the stored refresh token (or the service
// account), and only falls back to interactive acquisition when asked to.
type CredentialProvider struct {
	oauthCfg         *oauth2.Config
	serviceAccount   *oauthjwt.Config
	bootstrapRefresh string
	store            TokenStore
	log              *logger.Logger

	mu     sync.Mutex
	cached *oauth2.Token
}

// CredentialOption customizes a CredentialProvider.
type CredentialOption func(*CredentialProvider)

// WithEndpoint overrides the OAuth2 endpoint (used against local fakes).
func WithEndpoint(endpoint oauth2.Endpoint) CredentialOption {
	return func(p *CredentialProvider) {
		if p.oauthCfg != nil {
			p.oauthCfg.Endpoint = endpoint
		}
	}
}

// NewCredentialProvider creates a CredentialProvider from the Gmail configuration.
func NewCredentialProvider(cfg config.GmailConfig, store TokenStore, log *logger.Logger, opts ...CredentialOption) (*CredentialProvider, error) {
	p := &CredentialProvider{
		bootstrapRefresh: cfg.RefreshToken,
		store:            store,
		log:              log.WithComponent("credentials"),
	}

	switch {
	case cfg.CredentialsJSON != "":
		jwtConfig, err := google.JWTConfigFromJSON([]byte(cfg.CredentialsJSON), Scopes...)
		if err != nil {
			return nil, fmt.Errorf("gmail: failed to parse credentials: %w", err)
		}
		// For service account with domain-wide delegation, impersonate the mailbox
		jwtConfig.Subject = cfg.Subject
		p.serviceAccount = jwtConfig
	case cfg.ClientID != "":
		p.oauthCfg = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
		}
	default:
		return nil, ErrNotConfigured
	}

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Token returns a usable access token. With interactive false, only cached or silently
// renewable credentials are used.
func (p *CredentialProvider) Token(ctx context.Context, interactive bool) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached.Valid() {
		return p.cached, nil
	}

	tok, err := p.renewSilently(ctx)
	if err == nil {
		p.remember(ctx, tok)
		return tok, nil
	}
	if !interactive {
		return nil, err
	}

	p.log.Debug().Err(err).Msg("silent renewal failed, trying interactive authorization")

	if p.bootstrapRefresh == "" {
		return nil, &AuthorizationRequiredError{ConsentURL: p.authCodeURL("sendiq")}
	}

	tok, err = p.refresh(ctx, p.bootstrapRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorizationRequired, err)
	}
	p.remember(ctx, tok)
	return tok, nil
}

// Invalidate drops tok from the cache so the next Token call re-authenticates
// instead of reusing a credential the remote side rejected.
func (p *CredentialProvider) Invalidate(tok *oauth2.Token) {
	if tok == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && p.cached.AccessToken == tok.AccessToken {
		p.cached = nil
		p.log.Info().Msg("cached credential invalidated")
	}
}

// AuthCodeURL returns the consent URL for the OAuth2 client flow.
func (p *CredentialProvider) AuthCodeURL(state string) (string, error) {
	if p.oauthCfg == nil {
		return "", fmt.Errorf("consent flow unavailable with service account credentials")
	}
	return p.authCodeURL(state), nil
}

// Exchange trades an authorization code for a token and stores it.
func (p *CredentialProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if p.oauthCfg == nil {
		return nil, fmt.Errorf("consent flow unavailable with service account credentials")
	}

	tok, err := p.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.remember(ctx, tok)
	return tok, nil
}

func (p *CredentialProvider) authCodeURL(state string) string {
	if p.oauthCfg == nil {
		return ""
	}
	return p.oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (p *CredentialProvider) renewSilently(ctx context.Context) (*oauth2.Token, error) {
	if p.serviceAccount != nil {
		tok, err := p.serviceAccount.TokenSource(ctx).Token()
		if err != nil {
			return nil, fmt.Errorf("%w: service account: %v", ErrAuthorizationRequired, err)
		}
		return tok, nil
	}

	stored, err := p.store.LoadToken(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAuthorizationRequired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stored credential: %w", err)
	}
	if stored.RefreshToken == "" {
		return nil, ErrAuthorizationRequired
	}

	tok, err := p.refresh(ctx, stored.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorizationRequired, err)
	}
	return tok, nil
}

func (p *CredentialProvider) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	tok, err := p.oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

// remember caches tok and persists it for OAuth2 clients. Caller holds p.mu.
func (p *CredentialProvider) remember(ctx context.Context, tok *oauth2.Token) {
	p.cached = tok
	if p.serviceAccount != nil || tok.RefreshToken == "" {
		return
	}
	if err := p.store.SaveToken(ctx, tok); err != nil {
		p.log.Warn().Err(err).Msg("failed to persist credential")
	}
}
