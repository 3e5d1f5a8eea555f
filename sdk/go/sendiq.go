// Package sendiq is a client for the SendIQ HTTP API.
package sendiq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds the configuration for the SendIQ client.
type Config struct {
	// BaseURL is the root URL of the SendIQ server.
	// The "/api/v1" suffix is appended automatically if missing.
	BaseURL string

	// Token is the API bearer token. Leave empty when the server runs without API authentication.
	Token string

	// HTTPClient is an optional custom HTTP client.
	// If nil, a default client with 30s timeout is used.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if !strings.HasSuffix(c.BaseURL, "/api/v1") {
		c.BaseURL = c.BaseURL + "/api/v1"
	}
}

// Client is the SendIQ SDK client.
type Client struct {
	cfg Config
}

// NewClient creates a new SendIQ client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{cfg: cfg}
}

// Schedule queues a deferred send. The send time must be more than a minute away.
func (c *Client) Schedule(ctx context.Context, req ScheduleRequest) (*ScheduledSend, error) {
	var resp struct {
		ScheduledSend *ScheduledSend `json:"scheduledSend"`
	}
	if err := c.do(ctx, http.MethodPost, "/scheduled", req, &resp); err != nil {
		return nil, err
	}
	return resp.ScheduledSend, nil
}

// ListScheduled returns every pending scheduled send.
func (c *Client) ListScheduled(ctx context.Context) ([]ScheduledSend, error) {
	var resp struct {
		ScheduledSends []ScheduledSend `json:"scheduledSends"`
	}
	if err := c.do(ctx, http.MethodGet, "/scheduled", nil, &resp); err != nil {
		return nil, err
	}
	return resp.ScheduledSends, nil
}

// CancelScheduled discards every pending scheduled send.
func (c *Client) CancelScheduled(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/scheduled", nil, nil)
}

// SendNow starts a mass send and returns its task id. The result arrives on the event stream.
func (c *Client) SendNow(ctx context.Context, req SendRequest) (string, error) {
	var resp struct {
		TaskID string `json:"taskId"`
	}
	if err := c.do(ctx, http.MethodPost, "/send", req, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// Authorize asks the server to acquire a mailbox credential.
func (c *Client) Authorize(ctx context.Context, interactive bool) (*Account, error) {
	var acct Account
	if err := c.do(ctx, http.MethodPost, "/authorize", map[string]bool{"interactive": interactive}, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// Account returns the mailbox owner without prompting for consent.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	var acct Account
	if err := c.do(ctx, http.MethodGet, "/account", nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// DeleteRecentDraft deletes the newest draft.
func (c *Client) DeleteRecentDraft(ctx context.Context) (*DraftDeletion, error) {
	var res DraftDeletion
	if err := c.do(ctx, http.MethodPost, "/drafts/delete-recent", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteMatchingDraft deletes the draft matching subject and content.
func (c *Client) DeleteMatchingDraft(ctx context.Context, subject, content string) (*DraftDeletion, error) {
	var res DraftDeletion
	payload := map[string]string{"subject": subject, "content": content}
	if err := c.do(ctx, http.MethodPost, "/drafts/delete-matching", payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Settings returns the stored user settings.
func (c *Client) Settings(ctx context.Context) (*Settings, error) {
	var s Settings
	if err := c.do(ctx, http.MethodGet, "/settings", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSettings replaces the stored user settings.
func (c *Client) UpdateSettings(ctx context.Context, s Settings) (*Settings, error) {
	var out Settings
	if err := c.do(ctx, http.MethodPut, "/settings", s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecentActivity returns the activity log, newest first.
func (c *Client) RecentActivity(ctx context.Context) ([]Activity, error) {
	var resp struct {
		Activity []Activity `json:"activity"`
	}
	if err := c.do(ctx, http.MethodGet, "/activity", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Activity, nil
}

// Events subscribes to the server's event stream. The channel is closed when ctx is
// done or the stream ends.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives any client-wide timeout
	streamClient := *c.cfg.HTTPClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sendiq: request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, parseAPIError(resp.StatusCode, body)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		readEvents(ctx, resp.Body, out)
	}()
	return out, nil
}

// readEvents parses server-sent events from r
func readEvents(ctx context.Context, r io.Reader, out chan<- Event) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) == 0 {
				continue
			}
			var envelope struct {
				ID        string          `json:"id"`
				Type      string          `json:"type"`
				Data      json.RawMessage `json:"data"`
				Timestamp int64           `json:"timestamp"`
			}
			if err := json.Unmarshal(data, &envelope); err == nil {
				ev := Event{ID: envelope.ID, Type: envelope.Type, Data: envelope.Data, Timestamp: envelope.Timestamp}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			data = nil
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: ")...)
		}
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("sendiq: failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("sendiq: failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return req, nil
}

// do sends a request to the SendIQ API and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendiq: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sendiq: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, body)
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("sendiq: failed to parse response: %w", err)
		}
	}
	return nil
}
