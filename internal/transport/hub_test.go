package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peder1981/p2p-presence/internal/envelope"
)

func env(from, typ string) envelope.Envelope {
	return envelope.New(from, "", typ, nil, time.UnixMilli(1))
}

func TestHubDeliversToAllIncludingSender(t *testing.T) {
	hub := NewHub()
	var a, b []string
	_, err := hub.Subscribe("room", func(e envelope.Envelope) { a = append(a, e.Type) })
	require.NoError(t, err)
	_, err = hub.Subscribe("room", func(e envelope.Envelope) { b = append(b, e.Type) })
	require.NoError(t, err)
	_, err = hub.Subscribe("other", func(e envelope.Envelope) { t.Errorf("cross-channel delivery of %s", e.Type) })
	require.NoError(t, err)

	require.NoError(t, hub.Publish("room", env("x", "one")))
	require.NoError(t, hub.Publish("room", env("x", "two")))

	assert.Equal(t, []string{"one", "two"}, a)
	assert.Equal(t, []string{"one", "two"}, b)
	assert.Equal(t, 2, hub.Subscribers("room"))
}

func TestHubNestedPublishIsQueued(t *testing.T) {
	hub := NewHub()
	var order []string
	_, err := hub.Subscribe("room", func(e envelope.Envelope) {
		order = append(order, "first:"+e.Type)
		if e.Type == "ping" {
			require.NoError(t, hub.Publish("room", env("first", "pong")))
		}
	})
	require.NoError(t, err)
	_, err = hub.Subscribe("room", func(e envelope.Envelope) {
		order = append(order, "second:"+e.Type)
	})
	require.NoError(t, err)

	require.NoError(t, hub.Publish("room", env("x", "ping")))
	assert.Equal(t, []string{"first:ping", "second:ping", "first:pong", "second:pong"}, order)
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()
	calls := 0
	sub, err := hub.Subscribe("room", func(envelope.Envelope) { calls++ })
	require.NoError(t, err)

	require.NoError(t, hub.Publish("room", env("x", "one")))
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, hub.Publish("room", env("x", "two")))

	assert.Equal(t, 1, calls)
	assert.Zero(t, hub.Subscribers("room"))
}

func TestHubNoDeliveryAfterDetachMidQueue(t *testing.T) {
	hub := NewHub()
	var second Subscription
	secondCalls := 0
	_, err := hub.Subscribe("room", func(envelope.Envelope) { _ = second.Unsubscribe() })
	require.NoError(t, err)
	second, err = hub.Subscribe("room", func(envelope.Envelope) { secondCalls++ })
	require.NoError(t, err)

	require.NoError(t, hub.Publish("room", env("x", "one")))
	assert.Zero(t, secondCalls)
}

func TestHubRejectsBadInput(t *testing.T) {
	hub := NewHub()
	_, err := hub.Subscribe("", func(envelope.Envelope) {})
	assert.Error(t, err)
	_, err = hub.Subscribe("room", nil)
	assert.Error(t, err)

	require.NoError(t, hub.Close())
	_, err = hub.Subscribe("room", func(envelope.Envelope) {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, hub.Publish("room", env("x", "one")), ErrClosed)
}
