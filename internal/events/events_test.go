package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendiq/sendiq/internal/logger"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub()
	ch1, cancel1 := hub.Subscribe()
	ch2, cancel2 := hub.Subscribe()
	defer cancel2()
	assert.Equal(t, 2, hub.Subscribers())

	hub.Broadcast(context.Background(), New(TypeScheduledSetChanged, []string{"a"}))

	ev := <-ch1
	assert.Equal(t, TypeScheduledSetChanged, ev.Type)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, TypeScheduledSetChanged, (<-ch2).Type)

	cancel1()
	cancel1()
	_, open := <-ch1
	assert.False(t, open)
	assert.Equal(t, 1, hub.Subscribers())
}

func TestHubWithoutSubscribersIsNoop(t *testing.T) {
	hub := NewHub()
	assert.NotPanics(t, func() {
		hub.Broadcast(context.Background(), New(TypeMassSendFailed, "x"))
	})
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Broadcast(context.Background(), New(TypeMassSendCompleted, i))
	}
	assert.Len(t, ch, subscriberBuffer)
}

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message interface{}) error {
	f.channel = channel
	f.payload, _ = message.([]byte)
	return f.err
}

func TestRedisBroadcaster(t *testing.T) {
	pub := &fakePublisher{}
	b := NewRedisBroadcaster(pub, "sendiq:events", logger.Nop())

	b.Broadcast(context.Background(), New(TypeMassSendFailed, map[string]string{"error": "boom"}))

	assert.Equal(t, "sendiq:events", pub.channel)
	var decoded Event
	require.NoError(t, json.Unmarshal(pub.payload, &decoded))
	assert.Equal(t, TypeMassSendFailed, decoded.Type)
}

func TestRedisBroadcasterSwallowsErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no connection")}
	b := Fanout{NewRedisBroadcaster(pub, "c", logger.Nop()), Discard{}, nil}

	assert.NotPanics(t, func() {
		b.Broadcast(context.Background(), New(TypeScheduledSetChanged, nil))
	})
}
