package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/sendiq/sendiq/internal/database"
	"github.com/sendiq/sendiq/internal/email"
	"github.com/sendiq/sendiq/internal/events"
	"github.com/sendiq/sendiq/internal/model"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *testClock) Ms(offset time.Duration) int64 {
	return c.Now().Add(offset).UnixMilli()
}

type fakeCreds struct {
	mu          sync.Mutex
	token       *oauth2.Token
	err         error
	calls       int
	interactive []bool
	invalidated []*oauth2.Token
}

func newFakeCreds() *fakeCreds {
	return &fakeCreds{token: &oauth2.Token{AccessToken: "good-token"}}
}

func (f *fakeCreds) Token(_ context.Context, interactive bool) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.interactive = append(f.interactive, interactive)
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func (f *fakeCreds) Invalidate(tok *oauth2.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, tok)
}

type sentMessage struct {
	To      string
	Subject string
	Header  string
	Body    string
}

type fakeTransport struct {
	mu        sync.Mutex
	sent      []sentMessage
	attempts  []string
	failFor   map[string]error
	panicFor  string
	identity  *model.Identity
	idErr     error
	drafts    []model.Draft
	listErr   error
	deleteErr error
	deleted   []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		failFor:  map[string]error{},
		identity: &model.Identity{Email: "owner@example.com", Name: "Owner"},
	}
}

func headerValue(header, name string) string {
	for _, line := range strings.Split(header, "\r\n") {
		if v, ok := strings.CutPrefix(line, name+": "); ok {
			return v
		}
	}
	return ""
}

func (f *fakeTransport) Send(_ context.Context, _ *oauth2.Token, raw string) (string, error) {
	header, body, err := email.DecodeMessage(raw)
	if err != nil {
		return "", err
	}
	to := strings.Trim(headerValue(header, "To"), "<>")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, to)
	if to == f.panicFor {
		panic("transport exploded")
	}
	if err := f.failFor[to]; err != nil {
		return "", err
	}
	f.sent = append(f.sent, sentMessage{To: to, Subject: headerValue(header, "Subject"), Header: header, Body: body})
	return "msg-" + to, nil
}

func (f *fakeTransport) Identity(context.Context, *oauth2.Token) (*model.Identity, error) {
	if f.idErr != nil {
		return nil, f.idErr
	}
	id := *f.identity
	return &id, nil
}

func (f *fakeTransport) ListDrafts(context.Context, *oauth2.Token) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make([]string, 0, len(f.drafts))
	for _, d := range f.drafts {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (f *fakeTransport) GetDraft(_ context.Context, _ *oauth2.Token, id string) (*model.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.drafts {
		if d.ID == id {
			out := d
			return &out, nil
		}
	}
	return nil, &email.RemoteError{Status: 404, Body: "not found"}
}

func (f *fakeTransport) DeleteDraft(_ context.Context, _ *oauth2.Token, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeTransport) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeTransport) Attempts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attempts...)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingBroadcaster) Broadcast(_ context.Context, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingBroadcaster) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// flakyKV fails writes while failPut is set
type flakyKV struct {
	*database.Memory
	failPut bool
}

func (f *flakyKV) PutValue(ctx context.Context, key string, value []byte) error {
	if f.failPut {
		return errors.New("storage unavailable")
	}
	return f.Memory.PutValue(ctx, key, value)
}
