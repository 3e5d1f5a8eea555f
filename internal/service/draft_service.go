package service

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/oauth2"

	"github.com/sendiq/sendiq/internal/email"
	"github.com/sendiq/sendiq/internal/logger"
)

// Draft deletion methods
const (
	DraftMethodContentMatch = "content_match"
	DraftMethodFallback     = "fallback"
)

// draftMatchPrefix is how much of the cleaned search content a draft must contain
const draftMatchPrefix = 100

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// DraftDeletion reports the outcome of a draft cleanup
type DraftDeletion struct {
	Deleted bool   `json:"deleted"`
	DraftID string `json:"draftId,omitempty"`
	Method  string `json:"method"`
}

// DraftService removes the compose draft left behind after the client intercepts a send
type DraftService struct {
	creds     Credentials
	transport email.Transport
	log       *logger.Logger
}

// NewDraftService creates a new DraftService
func NewDraftService(creds Credentials, transport email.Transport, log *logger.Logger) *DraftService {
	return &DraftService{
		creds:     creds,
		transport: transport,
		log:       log.WithComponent("drafts"),
	}
}

// DeleteMostRecent deletes the newest draft. Having no drafts is not an error.
func (d *DraftService) DeleteMostRecent(ctx context.Context) (*DraftDeletion, error) {
	cred, err := d.creds.Token(ctx, false)
	if err != nil {
		return nil, err
	}
	return d.deleteMostRecent(ctx, cred, DraftMethodFallback)
}

// DeleteMatching deletes the first draft whose subject equals subject (ignoring case)
// and whose body contains the leading part of content once markup is stripped. With
// no match, the most recent draft is deleted instead.
func (d *DraftService) DeleteMatching(ctx context.Context, subject, content string) (*DraftDeletion, error) {
	cred, err := d.creds.Token(ctx, false)
	if err != nil {
		return nil, err
	}
	if subject == "" && content == "" {
		return d.deleteMostRecent(ctx, cred, DraftMethodFallback)
	}

	ids, err := d.transport.ListDrafts(ctx, cred)
	if err != nil {
		return nil, d.reject(cred, err)
	}
	if len(ids) == 0 {
		return &DraftDeletion{Method: DraftMethodContentMatch}, nil
	}

	search := truncateRunes(cleanContent(content), draftMatchPrefix)
	for _, id := range ids {
		draft, err := d.transport.GetDraft(ctx, cred, id)
		if err != nil {
			d.log.Debug().Err(err).Str("draft_id", id).Msg("skipping unreadable draft")
			continue
		}
		if !strings.EqualFold(draft.Subject, subject) {
			continue
		}

		body := ""
		if draft.BodyData != "" {
			decoded, err := email.DecodeBase64URL(draft.BodyData)
			if err != nil {
				d.log.Debug().Err(err).Str("draft_id", id).Msg("skipping undecodable draft body")
				continue
			}
			body = cleanContent(string(decoded))
		}
		if !strings.Contains(body, search) {
			continue
		}

		if err := d.transport.DeleteDraft(ctx, cred, id); err != nil {
			return nil, d.reject(cred, err)
		}
		d.log.Info().Str("draft_id", id).Msg("deleted matching draft")
		return &DraftDeletion{Deleted: true, DraftID: id, Method: DraftMethodContentMatch}, nil
	}

	d.log.Debug().Msg("no draft matched, deleting most recent")
	return d.deleteMostRecent(ctx, cred, DraftMethodContentMatch)
}

func (d *DraftService) deleteMostRecent(ctx context.Context, cred *oauth2.Token, method string) (*DraftDeletion, error) {
	ids, err := d.transport.ListDrafts(ctx, cred)
	if err != nil {
		return nil, d.reject(cred, err)
	}
	if len(ids) == 0 {
		return &DraftDeletion{Method: method}, nil
	}

	if err := d.transport.DeleteDraft(ctx, cred, ids[0]); err != nil {
		return nil, d.reject(cred, err)
	}
	d.log.Info().Str("draft_id", ids[0]).Msg("deleted most recent draft")
	return &DraftDeletion{Deleted: true, DraftID: ids[0], Method: method}, nil
}

func (d *DraftService) reject(cred *oauth2.Token, err error) error {
	if email.IsInvalidCredential(err) {
		d.creds.Invalidate(cred)
	}
	return err
}

// cleanContent strips tags and collapses whitespace
func cleanContent(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
