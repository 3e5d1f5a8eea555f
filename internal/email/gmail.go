package email

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/sendiq/sendiq/internal/model"
)

const gmailUser = "me"

// GmailTransport implements Transport using the Gmail API.
type GmailTransport struct {
	opts []option.ClientOption
}

// NewGmailTransport creates a new GmailTransport. Extra client options are applied
// to every API service it builds (e.g. option.WithEndpoint for a local fake).
func NewGmailTransport(opts ...option.ClientOption) *GmailTransport {
	return &GmailTransport{opts: opts}
}

func (g *GmailTransport) clientOptions(cred *oauth2.Token) []option.ClientOption {
	opts := make([]option.ClientOption, 0, len(g.opts)+1)
	opts = append(opts, option.WithTokenSource(oauth2.StaticTokenSource(cred)))
	return append(opts, g.opts...)
}

func (g *GmailTransport) service(ctx context.Context, cred *oauth2.Token) (*gmail.Service, error) {
	svc, err := gmail.NewService(ctx, g.clientOptions(cred)...)
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}
	return svc, nil
}

// Send sends an already encoded message via the Gmail API.
func (g *GmailTransport) Send(ctx context.Context, cred *oauth2.Token, raw string) (string, error) {
	svc, err := g.service(ctx, cred)
	if err != nil {
		return "", err
	}

	sent, err := svc.Users.Messages.Send(gmailUser, &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gmail: failed to send email: %w", toRemoteError(err))
	}
	return sent.Id, nil
}

// Identity looks up the authorized user's profile.
func (g *GmailTransport) Identity(ctx context.Context, cred *oauth2.Token) (*model.Identity, error) {
	svc, err := oauth2api.NewService(ctx, g.clientOptions(cred)...)
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to fetch userinfo: %w", toRemoteError(err))
	}
	return &model.Identity{
		Email:   info.Email,
		Name:    info.Name,
		Picture: info.Picture,
	}, nil
}

// ListDrafts returns the draft ids in the order Gmail reports them (most recent first).
func (g *GmailTransport) ListDrafts(ctx context.Context, cred *oauth2.Token) ([]string, error) {
	svc, err := g.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Users.Drafts.List(gmailUser).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to list drafts: %w", toRemoteError(err))
	}

	ids := make([]string, 0, len(resp.Drafts))
	for _, d := range resp.Drafts {
		ids = append(ids, d.Id)
	}
	return ids, nil
}

// GetDraft fetches a draft in full format and extracts its subject and body.
func (g *GmailTransport) GetDraft(ctx context.Context, cred *oauth2.Token, id string) (*model.Draft, error) {
	svc, err := g.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	d, err := svc.Users.Drafts.Get(gmailUser, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to get draft %s: %w", id, toRemoteError(err))
	}

	draft := &model.Draft{ID: d.Id}
	if d.Message == nil || d.Message.Payload == nil {
		return draft, nil
	}

	payload := d.Message.Payload
	for _, h := range payload.Headers {
		if strings.EqualFold(h.Name, "subject") {
			draft.Subject = h.Value
			break
		}
	}
	draft.BodyData = bodyData(payload)
	return draft, nil
}

// bodyData prefers the top-level body, then an HTML part, then a plain-text part.
func bodyData(payload *gmail.MessagePart) string {
	if payload.Body != nil && payload.Body.Data != "" {
		return payload.Body.Data
	}
	for _, mimeType := range []string{"text/html", "text/plain"} {
		for _, p := range payload.Parts {
			if p.MimeType == mimeType && p.Body != nil && p.Body.Data != "" {
				return p.Body.Data
			}
		}
	}
	return ""
}

// DeleteDraft permanently deletes a draft.
func (g *GmailTransport) DeleteDraft(ctx context.Context, cred *oauth2.Token, id string) error {
	svc, err := g.service(ctx, cred)
	if err != nil {
		return err
	}

	if err := svc.Users.Drafts.Delete(gmailUser, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail: failed to delete draft %s: %w", id, toRemoteError(err))
	}
	return nil
}
