package router

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sendiq/sendiq/internal/auth"
	"github.com/sendiq/sendiq/internal/config"
	"github.com/sendiq/sendiq/internal/database"
	"github.com/sendiq/sendiq/internal/email"
	"github.com/sendiq/sendiq/internal/events"
	"github.com/sendiq/sendiq/internal/handler"
	"github.com/sendiq/sendiq/internal/logger"
	"github.com/sendiq/sendiq/internal/middleware"
	"github.com/sendiq/sendiq/internal/model"
	"github.com/sendiq/sendiq/internal/repository"
	"github.com/sendiq/sendiq/internal/service"
)

type stubCreds struct {
	err error
}

func (s *stubCreds) Token(context.Context, bool) (*oauth2.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: "tok"}, nil
}

func (s *stubCreds) Invalidate(*oauth2.Token) {}

type stubTransport struct {
	mu      sync.Mutex
	sent    int
	listErr error
	drafts  []string
}

func (s *stubTransport) Send(context.Context, *oauth2.Token, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return "m", nil
}

func (s *stubTransport) Identity(context.Context, *oauth2.Token) (*model.Identity, error) {
	return &model.Identity{Email: "owner@example.com", Name: "Owner"}, nil
}

func (s *stubTransport) ListDrafts(context.Context, *oauth2.Token) ([]string, error) {
	return s.drafts, s.listErr
}

func (s *stubTransport) GetDraft(_ context.Context, _ *oauth2.Token, id string) (*model.Draft, error) {
	return &model.Draft{ID: id}, nil
}

func (s *stubTransport) DeleteDraft(context.Context, *oauth2.Token, string) error { return nil }

type testServer struct {
	srv       *httptest.Server
	creds     *stubCreds
	transport *stubTransport
	settings  *repository.SettingsRepository
	hub       *events.Hub
	tokens    *auth.APITokens
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	log := logger.Nop()
	kv := database.NewMemory()
	cfg := &config.Config{Security: config.SecurityConfig{APISecret: secret, TokenIssuer: "sendiq", TokenTTL: time.Hour}}

	ts := &testServer{
		creds:     &stubCreds{},
		transport: &stubTransport{drafts: []string{"d1"}},
		settings:  repository.NewSettingsRepository(kv, "t:", model.Settings{AutoIntercept: true}),
		hub:       events.NewHub(),
		tokens:    auth.NewAPITokens(cfg.Security),
	}
	activity := repository.NewActivityRepository(kv, "t:", 10)
	dispatcher := service.NewDispatcher(ts.creds, ts.transport, log)
	store := service.NewScheduleStore(repository.NewScheduledSendRepository(kv, "t:"), ts.hub, log)

	h := handler.New(
		log,
		cfg,
		map[string]handler.HealthChecker{"storage": kv},
		service.NewSchedulerService(store, dispatcher, activity, cfg.Scheduler, log),
		service.NewMassSendService(dispatcher, activity, ts.settings, ts.hub, cfg.MassSend, log),
		service.NewDraftService(ts.creds, ts.transport, log),
		service.NewAccountService(ts.creds, nil, ts.transport, ts.settings, activity, log),
		ts.hub,
	)
	mw := middleware.New(nil, log, cfg)
	ts.srv = httptest.NewServer(New(h, mw, ts.tokens, []string{"*"}, middleware.RateLimitConfig{Name: "send", Limit: 10, Window: time.Minute, KeyFn: middleware.IPKey}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestScheduleLifecycle(t *testing.T) {
	ts := newTestServer(t, "")
	sendAt := time.Now().Add(10 * time.Minute).UnixMilli()

	resp, body := ts.do(t, http.MethodPost, "/api/v1/scheduled",
		`{"recipients":[{"email":"a@example.com","bodyHtml":"<p>x</p>"}],"subject":"S","sendAt":`+jsonInt(sendAt)+`}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entry := body["scheduledSend"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(entry["id"].(string), "scheduled-"))

	resp, body = ts.do(t, http.MethodGet, "/api/v1/scheduled", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["scheduledSends"], 1)

	resp, _ = ts.do(t, http.MethodDelete, "/api/v1/scheduled", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = ts.do(t, http.MethodGet, "/api/v1/scheduled", "")
	assert.Empty(t, body["scheduledSends"])
}

func TestScheduleTooSoon(t *testing.T) {
	ts := newTestServer(t, "")
	sendAt := time.Now().Add(10 * time.Second).UnixMilli()

	resp, body := ts.do(t, http.MethodPost, "/api/v1/scheduled",
		`{"recipients":[{"email":"a@example.com"}],"subject":"S","sendAt":`+jsonInt(sendAt)+`}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", errorCode(body))
}

func TestScheduleRejectsUnknownFields(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, http.MethodPost, "/api/v1/scheduled", `{"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", errorCode(body))
}

func TestSendNowAcceptedAndStreamed(t *testing.T) {
	ts := newTestServer(t, "")

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/send",
		`{"recipients":[{"email":"a@example.com","bodyHtml":"x"},{"email":"b@example.com","bodyHtml":"y"}],"subject":"S","pacingMs":0}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, body["taskId"])

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(stream.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed early")
			if line == "event: "+events.TypeMassSendCompleted {
				return
			}
		case <-deadline:
			t.Fatal("no completion event")
		}
	}
}

func TestSendNowAutoInterceptDisabled(t *testing.T) {
	ts := newTestServer(t, "")
	require.NoError(t, ts.settings.Save(context.Background(), model.Settings{AutoIntercept: false}))

	resp, body := ts.do(t, http.MethodPost, "/api/v1/send", `{"recipients":[{"email":"a@example.com"}],"subject":"S"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	e := body["error"].(map[string]interface{})
	assert.Equal(t, "Auto-intercept is disabled", e["message"])
}

func TestAuthorizeRequiresConsent(t *testing.T) {
	ts := newTestServer(t, "")
	ts.creds.err = &auth.AuthorizationRequiredError{ConsentURL: "https://consent.example.com"}

	resp, body := ts.do(t, http.MethodPost, "/api/v1/authorize", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	e := body["error"].(map[string]interface{})
	assert.Equal(t, "auth_error", e["code"])
	assert.Equal(t, "https://consent.example.com", e["details"].(map[string]interface{})["consentUrl"])
}

func TestAccount(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, http.MethodGet, "/api/v1/account", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "owner@example.com", body["email"])

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/authorize/url", "")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestDraftErrorsClassified(t *testing.T) {
	ts := newTestServer(t, "")
	ts.transport.listErr = &email.RemoteError{Status: 403, Body: "forbidden"}

	resp, body := ts.do(t, http.MethodPost, "/api/v1/drafts/delete-recent", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "permission_error", errorCode(body))

	ts.transport.listErr = nil
	resp, body = ts.do(t, http.MethodPost, "/api/v1/drafts/delete-matching", `{"subject":"","content":""}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["deleted"])
	assert.Equal(t, "fallback", body["method"])
}

func TestSettingsRoundTrip(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, http.MethodPut, "/api/v1/settings", `{"autoIntercept":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["autoIntercept"])

	_, body = ts.do(t, http.MethodGet, "/api/v1/settings", "")
	assert.Equal(t, false, body["autoIntercept"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/activity", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "activity")
}

func TestAPIAuthentication(t *testing.T) {
	ts := newTestServer(t, "top-secret")

	resp, _ := ts.do(t, http.MethodGet, "/api/v1/scheduled", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health stays public")

	tok, err := ts.tokens.Issue("cli")
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/v1/scheduled", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
