// Package metrics exposes presence counters to Prometheus.
//
// All methods are safe on a nil *Metrics, so instances built without
// metrics pay nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "presence"

// Metrics groups the collectors of one process.
type Metrics struct {
	peers           *prometheus.GaugeVec
	joins           *prometheus.CounterVec
	leaves          *prometheus.CounterVec
	received        *prometheus.CounterVec
	sent            *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Peers currently in the membership view.",
		}, []string{"channel"}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_joins_total",
			Help:      "Peers added to the membership view.",
		}, []string{"channel"}),
		leaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_leaves_total",
			Help:      "Peers removed from the membership view, by cause.",
		}, []string{"channel", "reason"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_received_total",
			Help:      "Inbound envelopes by routing verdict.",
		}, []string{"channel", "verdict"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_sent_total",
			Help:      "Outbound envelopes by class.",
		}, []string{"channel", "class"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "User handlers that panicked during dispatch.",
		}, []string{"event"}),
	}
	for _, c := range []prometheus.Collector{m.peers, m.joins, m.leaves, m.received, m.sent, m.handlerFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SetPeers records the current membership size.
func (m *Metrics) SetPeers(channel string, n int) {
	if m == nil {
		return
	}
	m.peers.WithLabelValues(channel).Set(float64(n))
}

// PeerJoined counts a join.
func (m *Metrics) PeerJoined(channel string) {
	if m == nil {
		return
	}
	m.joins.WithLabelValues(channel).Inc()
}

// PeerLeft counts a removal; reason is "disconnect" or "stale".
func (m *Metrics) PeerLeft(channel, reason string) {
	if m == nil {
		return
	}
	m.leaves.WithLabelValues(channel, reason).Inc()
}

// Received counts an inbound envelope.
func (m *Metrics) Received(channel, verdict string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(channel, verdict).Inc()
}

// Sent counts an outbound envelope; class is "internal" or "user".
func (m *Metrics) Sent(channel, class string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(channel, class).Inc()
}

// HandlerFailed counts a panicking user handler.
func (m *Metrics) HandlerFailed(event string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(event).Inc()
}
