package events

import (
	"context"
	"encoding/json"

	"github.com/sendiq/sendiq/internal/logger"
)

// Publisher is the subset of the Redis client used for publishing
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// RedisBroadcaster publishes events as JSON on a Redis channel
type RedisBroadcaster struct {
	pub     Publisher
	channel string
	log     *logger.Logger
}

// NewRedisBroadcaster creates a new RedisBroadcaster
func NewRedisBroadcaster(pub Publisher, channel string, log *logger.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{pub: pub, channel: channel, log: log.WithComponent("events")}
}

// Broadcast implements Broadcaster
func (r *RedisBroadcaster) Broadcast(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.log.Debug().Err(err).Str("type", ev.Type).Msg("failed to encode event")
		return
	}
	if err := r.pub.Publish(ctx, r.channel, payload); err != nil {
		r.log.Debug().Err(err).Str("type", ev.Type).Msg("event not published")
	}
}
