package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.SetPeers("room", 2)
	m.PeerJoined("room")
	m.PeerJoined("room")
	m.PeerLeft("room", "stale")
	m.Received("room", "deliver")
	m.Sent("room", "user")
	m.HandlerFailed("message")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.peers.WithLabelValues("room")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.joins.WithLabelValues("room")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.leaves.WithLabelValues("room", "stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.received.WithLabelValues("room", "deliver")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sent.WithLabelValues("room", "user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handlerFailures.WithLabelValues("message")))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetPeers("room", 1)
		m.PeerJoined("room")
		m.PeerLeft("room", "disconnect")
		m.Received("room", "self")
		m.Sent("room", "internal")
		m.HandlerFailed("error")
	})
}
