package service

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/sendiq/sendiq/internal/email"
	"github.com/sendiq/sendiq/internal/logger"
	"github.com/sendiq/sendiq/internal/model"
)

// defaultSender is used in the From header when the identity lookup fails
const defaultSender = "me"

// Dispatcher builds and sends individual messages on behalf of the mailbox owner.
// Both the scheduler and the mass-send path go through it.
type Dispatcher struct {
	creds     Credentials
	transport email.Transport
	log       *logger.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(creds Credentials, transport email.Transport, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		creds:     creds,
		transport: transport,
		log:       log.WithComponent("dispatcher"),
	}
}

// sendSession is one credential plus the resolved sender identity, shared by a batch
type sendSession struct {
	cred *oauth2.Token
	from model.Identity
}

// open acquires a credential (interactively only when nothing silently renewable
// exists) and resolves the sender identity once.
func (d *Dispatcher) open(ctx context.Context) (*sendSession, error) {
	cred, err := d.creds.Token(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire credential: %w", err)
	}

	sess := &sendSession{cred: cred, from: model.Identity{Email: defaultSender}}
	id, err := d.transport.Identity(ctx, cred)
	if err != nil {
		d.log.Warn().Err(err).Msg("sender identity lookup failed, sending as default")
		return sess, nil
	}
	if id.Email != "" {
		sess.from.Email = id.Email
	}
	sess.from.Name = id.Name
	return sess, nil
}

// send delivers one message to r. A rejected credential is evicted from the cache so
// the next acquisition re-authenticates.
func (d *Dispatcher) send(ctx context.Context, sess *sendSession, r model.Recipient, subject string) (string, error) {
	raw := email.BuildMessage(email.Fields{
		FromEmail: sess.from.Email,
		FromName:  sess.from.Name,
		To:        r.Email,
		Subject:   subject,
		HTMLBody:  r.BodyHTML,
	})

	id, err := d.transport.Send(ctx, sess.cred, raw)
	if err != nil {
		if email.IsInvalidCredential(err) {
			d.creds.Invalidate(sess.cred)
		}
		return "", err
	}
	return id, nil
}
