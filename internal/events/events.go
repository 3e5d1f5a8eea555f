// Package events delivers best-effort notifications to whoever is listening.
// Absence of a listener is never an error.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	TypeScheduledSetChanged = "scheduledSetChanged"
	TypeMassSendCompleted   = "massSendCompleted"
	TypeMassSendFailed      = "massSendFailed"
)

// Event is one broadcast notification
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// New creates an Event stamped with a fresh id and the current time
func New(eventType string, data interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Broadcaster delivers events. Implementations swallow delivery failures.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev Event)
}

// Fanout broadcasts to several broadcasters in order
type Fanout []Broadcaster

// Broadcast implements Broadcaster
func (f Fanout) Broadcast(ctx context.Context, ev Event) {
	for _, b := range f {
		if b != nil {
			b.Broadcast(ctx, ev)
		}
	}
}

// Discard drops every event
type Discard struct{}

// Broadcast implements Broadcaster
func (Discard) Broadcast(context.Context, Event) {}
