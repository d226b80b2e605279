package node

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/peder1981/p2p-presence/internal/metrics"
)

const (
	// DefaultHeartbeatInterval is how often an instance heartbeats and sweeps.
	DefaultHeartbeatInterval = 5 * time.Second
	// DefaultStaleAfter is how long a silent peer is kept. Three intervals
	// tolerate one or two lost heartbeats.
	DefaultStaleAfter = 3 * DefaultHeartbeatInterval
)

// Options configure an instance. Only ChannelName is required.
type Options struct {
	ChannelName    string
	RegistrationID string

	// Callbacks run after the subscribed listeners of the same event.
	OnMessage          func(Message)
	OnPeerConnected    func(id string)
	OnPeerDisconnected func(id string)
	OnError            func(error)

	// HeartbeatInterval defaults to DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration
	// StaleAfter defaults to three heartbeat intervals and must exceed one.
	StaleAfter time.Duration

	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() (Options, error) {
	if o.ChannelName == "" {
		return o, fmt.Errorf("%w: channel name is required", ErrInvalidOptions)
	}
	if o.HeartbeatInterval < 0 || o.StaleAfter < 0 {
		return o, fmt.Errorf("%w: negative interval", ErrInvalidOptions)
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.StaleAfter == 0 {
		o.StaleAfter = 3 * o.HeartbeatInterval
	}
	if o.StaleAfter <= o.HeartbeatInterval {
		return o, fmt.Errorf("%w: staleAfter %s must exceed heartbeat interval %s",
			ErrInvalidOptions, o.StaleAfter, o.HeartbeatInterval)
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o, nil
}
