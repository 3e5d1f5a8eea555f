package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/sendiq/sendiq/internal/model"
)

// Transport is the boundary to the remote mailbox. Every call is authorized with the
// credential passed in, may fail, and may be invoked concurrently.
type Transport interface {
	// Send delivers one encoded message and returns the remote message id.
	Send(ctx context.Context, cred *oauth2.Token, raw string) (string, error)
	// Identity returns the mailbox owner's own address and display name.
	Identity(ctx context.Context, cred *oauth2.Token) (*model.Identity, error)
	// ListDrafts returns draft ids, most recent first.
	ListDrafts(ctx context.Context, cred *oauth2.Token) ([]string, error)
	// GetDraft fetches a single draft with its subject and body.
	GetDraft(ctx context.Context, cred *oauth2.Token, id string) (*model.Draft, error)
	// DeleteDraft permanently removes a draft.
	DeleteDraft(ctx context.Context, cred *oauth2.Token, id string) error
}

// RemoteError is a non-2xx response from the mailbox API.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("gmail: API error %d: %s", e.Status, e.Body)
}

// StatusCode returns the remote HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Status
	}
	return 0
}

// IsInvalidCredential reports whether err means the credential used was rejected.
func IsInvalidCredential(err error) bool {
	if err == nil {
		return false
	}
	if StatusCode(err) == 401 {
		return true
	}
	return strings.Contains(err.Error(), "Invalid Credentials")
}

func toRemoteError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	body := gerr.Body
	if body == "" {
		body = gerr.Message
	}
	return &RemoteError{Status: gerr.Code, Body: body}
}
