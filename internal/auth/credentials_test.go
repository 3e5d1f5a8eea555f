package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sendiq/sendiq/internal/config"
	"github.com/sendiq/sendiq/internal/database"
	"github.com/sendiq/sendiq/internal/logger"
	"github.com/sendiq/sendiq/internal/repository"
)

type tokenEndpoint struct {
	calls        atomic.Int32
	lastRefresh  atomic.Value
	rejectAll    bool
	issueRefresh string
}

func (e *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := e.calls.Add(1)
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if e.rejectAll {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"invalid_grant"}`)
		return
	}
	e.lastRefresh.Store(r.PostForm.Get("refresh_token"))

	w.Header().Set("Content-Type", "application/json")
	refresh := ""
	if r.PostForm.Get("grant_type") == "authorization_code" {
		refresh = fmt.Sprintf(`,"refresh_token":%q`, e.issueRefresh)
	}
	fmt.Fprintf(w, `{"access_token":"at-%d","token_type":"Bearer","expires_in":3600%s}`, n, refresh)
}

func newTestProvider(t *testing.T, endpoint *tokenEndpoint, gmailCfg config.GmailConfig) (*CredentialProvider, *repository.TokenRepository) {
	t.Helper()
	srv := httptest.NewServer(endpoint)
	t.Cleanup(srv.Close)

	store := repository.NewTokenRepository(database.NewMemory(), "test:")
	if gmailCfg.ClientID == "" {
		gmailCfg.ClientID = "client-123"
	}
	gmailCfg.ClientSecret = "secret"
	gmailCfg.RedirectURL = "http://localhost/callback"

	p, err := NewCredentialProvider(gmailCfg, store, logger.Nop(), WithEndpoint(oauth2.Endpoint{
		AuthURL:  srv.URL + "/auth",
		TokenURL: srv.URL + "/token",
	}))
	require.NoError(t, err)
	return p, store
}

func TestCredentialProviderNotConfigured(t *testing.T) {
	_, err := NewCredentialProvider(config.GmailConfig{}, nil, logger.Nop())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCredentialProviderSilentWithoutStoredToken(t *testing.T) {
	p, _ := newTestProvider(t, &tokenEndpoint{}, config.GmailConfig{})

	_, err := p.Token(context.Background(), false)
	assert.ErrorIs(t, err, ErrAuthorizationRequired)
}

func TestCredentialProviderInteractiveNeedsConsent(t *testing.T) {
	p, _ := newTestProvider(t, &tokenEndpoint{}, config.GmailConfig{})

	_, err := p.Token(context.Background(), true)
	require.ErrorIs(t, err, ErrAuthorizationRequired)

	var authErr *AuthorizationRequiredError
	require.ErrorAs(t, err, &authErr)
	u, perr := url.Parse(authErr.ConsentURL)
	require.NoError(t, perr)
	assert.Equal(t, "client-123", u.Query().Get("client_id"))
	assert.Equal(t, "offline", u.Query().Get("access_type"))
}

func TestCredentialProviderInteractiveUsesBootstrapAndCaches(t *testing.T) {
	endpoint := &tokenEndpoint{}
	p, store := newTestProvider(t, endpoint, config.GmailConfig{RefreshToken: "boot-refresh"})
	ctx := context.Background()

	tok, err := p.Token(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, "boot-refresh", endpoint.lastRefresh.Load())

	again, err := p.Token(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "at-1", again.AccessToken)
	assert.Equal(t, int32(1), endpoint.calls.Load(), "valid cached token is reused")

	stored, err := store.LoadToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "boot-refresh", stored.RefreshToken)
}

func TestCredentialProviderSilentRenewalFromStore(t *testing.T) {
	endpoint := &tokenEndpoint{}
	p, store := newTestProvider(t, endpoint, config.GmailConfig{})
	ctx := context.Background()
	require.NoError(t, store.SaveToken(ctx, &oauth2.Token{RefreshToken: "stored-refresh"}))

	tok, err := p.Token(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, "stored-refresh", endpoint.lastRefresh.Load())
}

func TestCredentialProviderInvalidateForcesRenewal(t *testing.T) {
	endpoint := &tokenEndpoint{}
	p, store := newTestProvider(t, endpoint, config.GmailConfig{})
	ctx := context.Background()
	require.NoError(t, store.SaveToken(ctx, &oauth2.Token{RefreshToken: "stored-refresh"}))

	first, err := p.Token(ctx, false)
	require.NoError(t, err)

	p.Invalidate(&oauth2.Token{AccessToken: "someone-else"})
	same, err := p.Token(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, first.AccessToken, same.AccessToken, "invalidating a different token is a no-op")

	p.Invalidate(first)
	second, err := p.Token(ctx, false)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, int32(2), endpoint.calls.Load())
}

func TestCredentialProviderRevokedRefreshToken(t *testing.T) {
	p, store := newTestProvider(t, &tokenEndpoint{rejectAll: true}, config.GmailConfig{})
	ctx := context.Background()
	require.NoError(t, store.SaveToken(ctx, &oauth2.Token{RefreshToken: "revoked"}))

	_, err := p.Token(ctx, false)
	assert.ErrorIs(t, err, ErrAuthorizationRequired)
}

func TestCredentialProviderExchange(t *testing.T) {
	endpoint := &tokenEndpoint{issueRefresh: "granted-refresh"}
	p, store := newTestProvider(t, endpoint, config.GmailConfig{})
	ctx := context.Background()

	tok, err := p.Exchange(ctx, "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "granted-refresh", tok.RefreshToken)

	stored, err := store.LoadToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "granted-refresh", stored.RefreshToken)

	cached, err := p.Token(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, tok.AccessToken, cached.AccessToken)
}
