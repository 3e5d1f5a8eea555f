package email

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

type fakeGmail struct {
	mu       sync.Mutex
	sentRaw  []string
	deleted  []string
	authSeen []string
}

func (f *fakeGmail) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.authSeen = append(f.authSeen, r.Header.Get("Authorization"))
		f.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
			return
		}
		var body struct {
			Raw string `json:"raw"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.sentRaw = append(f.sentRaw, body.Raw)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg-1","threadId":"t-1"}`)
	})

	mux.HandleFunc("GET /oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"email":"me@example.com","name":"Me Example","picture":"http://pic"}`)
	})

	mux.HandleFunc("GET /gmail/v1/users/me/drafts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"drafts":[{"id":"d2"},{"id":"d1"}]}`)
	})

	mux.HandleFunc("GET /gmail/v1/users/me/drafts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.PathValue("id") {
		case "d1":
			io.WriteString(w, `{"id":"d1","message":{"payload":{"headers":[{"name":"Subject","value":"Hello"}],"body":{"data":"PHA-aGk8L3A-"}}}}`)
		case "d2":
			io.WriteString(w, `{"id":"d2","message":{"payload":{"headers":[{"name":"subject","value":"Multi"}],"body":{},"parts":[{"mimeType":"text/plain","body":{"data":"cGxhaW4"}},{"mimeType":"text/html","body":{"data":"aHRtbA"}}]}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"code":404,"message":"Not Found"}}`)
		}
	})

	mux.HandleFunc("DELETE /gmail/v1/users/me/drafts/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, r.PathValue("id"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func newTestTransport(t *testing.T) (*GmailTransport, *fakeGmail) {
	t.Helper()
	fake := &fakeGmail{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return NewGmailTransport(option.WithEndpoint(srv.URL + "/")), fake
}

func TestGmailTransportSend(t *testing.T) {
	transport, fake := newTestTransport(t)
	raw := BuildMessage(Fields{FromEmail: "me@example.com", To: "you@example.com", Subject: "Hi", HTMLBody: "<p>x</p>"})

	id, err := transport.Send(context.Background(), &oauth2.Token{AccessToken: "good-token"}, raw)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	require.Len(t, fake.sentRaw, 1)
	assert.Equal(t, raw, fake.sentRaw[0])
}

func TestGmailTransportSendRejectedCredential(t *testing.T) {
	transport, _ := newTestTransport(t)

	_, err := transport.Send(context.Background(), &oauth2.Token{AccessToken: "stale"}, "eA")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.True(t, IsInvalidCredential(err))
}

func TestGmailTransportIdentity(t *testing.T) {
	transport, _ := newTestTransport(t)

	id, err := transport.Identity(context.Background(), &oauth2.Token{AccessToken: "good-token"})
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", id.Email)
	assert.Equal(t, "Me Example", id.Name)
	assert.Equal(t, "http://pic", id.Picture)
}

func TestGmailTransportDrafts(t *testing.T) {
	transport, fake := newTestTransport(t)
	ctx := context.Background()
	cred := &oauth2.Token{AccessToken: "good-token"}

	ids, err := transport.ListDrafts(ctx, cred)
	require.NoError(t, err)
	assert.Equal(t, []string{"d2", "d1"}, ids)

	d1, err := transport.GetDraft(ctx, cred, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", d1.Subject)
	body, err := DecodeBase64URL(d1.BodyData)
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(body))

	d2, err := transport.GetDraft(ctx, cred, "d2")
	require.NoError(t, err)
	assert.Equal(t, "Multi", d2.Subject)
	assert.Equal(t, "aHRtbA", d2.BodyData, "html part wins over plain text")

	_, err = transport.GetDraft(ctx, cred, "missing")
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	require.NoError(t, transport.DeleteDraft(ctx, cred, "d1"))
	assert.Equal(t, []string{"d1"}, fake.deleted)
}

func TestIsInvalidCredential(t *testing.T) {
	assert.False(t, IsInvalidCredential(nil))
	assert.True(t, IsInvalidCredential(&RemoteError{Status: 401}))
	assert.False(t, IsInvalidCredential(&RemoteError{Status: 500, Body: "boom"}))
	assert.True(t, IsInvalidCredential(&RemoteError{Status: 400, Body: `{"message":"Invalid Credentials"}`}))
}
