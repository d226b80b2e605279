// Package node is the public face of a presence instance: it joins a
// channel on a transport, tracks which other instances are reachable, and
// exchanges application messages with them.
package node

import (
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/peder1981/p2p-presence/internal/envelope"
	"github.com/peder1981/p2p-presence/internal/events"
	"github.com/peder1981/p2p-presence/internal/goroutine"
	"github.com/peder1981/p2p-presence/internal/identity"
	"github.com/peder1981/p2p-presence/internal/metrics"
	"github.com/peder1981/p2p-presence/internal/peertable"
	"github.com/peder1981/p2p-presence/internal/presence"
	"github.com/peder1981/p2p-presence/internal/scheduler"
	"github.com/peder1981/p2p-presence/internal/transport"
)

// Node is one participant on a channel.
//
// Inbound deliveries, heartbeat ticks and Close are serialized by mu.
// Envelopes and notifications produced while mu is held are collected and
// published or dispatched only after it is released, so handlers may call
// back into the node.
type Node struct {
	self    identity.Identity
	channel string
	opts    Options
	tr      transport.Transport
	sub     transport.Subscription
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
	ticker  *scheduler.Task
	// handlers holds the goroutines currently running user code; Close
	// waits for them to leave.
	handlers *goroutine.Set

	mu          sync.Mutex
	joined      bool
	closed      bool
	table       *peertable.Table
	proto       *presence.Protocol
	pending     []func()
	leaveReason string
	// inflight counts protocol envelopes built under mu but not yet
	// published. A leave produced meanwhile is parked in leave and sent by
	// the last of them, so nothing of ours follows it on the wire.
	inflight int
	leave    *envelope.Envelope

	messages     *events.Listeners[Message]
	connected    *events.Listeners[string]
	disconnected *events.Listeners[string]
	errs         *events.Listeners[error]
}

// New creates an instance, subscribes it to the channel and announces it.
// A nil transport, or one that cannot subscribe, yields
// ErrTransportUnsupported.
func New(tr transport.Transport, opts Options) (*Node, error) {
	n, err := Prepare(tr, opts)
	if err != nil {
		return nil, err
	}
	if err := n.Join(); err != nil {
		return nil, err
	}
	return n, nil
}

// Prepare validates opts and builds an instance without touching the
// channel. Listeners registered before Join see everything from the first
// announcement on.
func Prepare(tr transport.Transport, opts Options) (*Node, error) {
	if tr == nil {
		return nil, fmt.Errorf("%w: no transport", ErrTransportUnsupported)
	}
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	self := identity.New(opts.RegistrationID)
	n := &Node{
		self:        self,
		channel:     opts.ChannelName,
		opts:        opts,
		tr:          tr,
		clock:       opts.Clock,
		metrics:     opts.Metrics,
		leaveReason: "disconnect",
		handlers:    goroutine.NewSet(),
		logger: opts.Logger.With(
			zap.String("channel", opts.ChannelName),
			zap.String("id", self.Preferred()),
		),
		messages:     events.NewListeners[Message]("message"),
		connected:    events.NewListeners[string]("peerConnected"),
		disconnected: events.NewListeners[string]("peerDisconnected"),
		errs:         events.NewListeners[error]("error"),
	}
	n.table = peertable.New(peertable.Hooks{OnJoin: n.peerJoined, OnLeave: n.peerLeft})
	n.proto = presence.New(self, n.table, n.clock, opts.StaleAfter, n.logger)
	n.ticker = scheduler.New(n.clock, opts.HeartbeatInterval, n.tick)

	return n, nil
}

// Join subscribes to the channel, announces the instance and starts
// heartbeating. Joining twice does nothing; joining a closed instance fails
// with ErrInstanceClosed.
func (n *Node) Join() error {
	n.mu.Lock()
	if n.closed || n.joined {
		n.mu.Unlock()
		if n.closed {
			return ErrInstanceClosed
		}
		return nil
	}
	sub, err := n.tr.Subscribe(n.channel, n.receive)
	if err != nil {
		n.mu.Unlock()
		if errors.Is(err, ErrTransportUnsupported) {
			return fmt.Errorf("subscribe to %q: %w", n.channel, err)
		}
		return fmt.Errorf("%w: subscribe to %q: %w", ErrTransportUnsupported, n.channel, err)
	}
	n.sub = sub
	n.joined = true
	announce := n.proto.Announce()
	n.inflight++
	n.mu.Unlock()

	for _, env := range announce {
		if err := n.publish(env); err != nil {
			n.mu.Lock()
			n.inflight--
			n.closed = true
			n.leave = nil
			n.mu.Unlock()
			n.ticker.Stop()
			return multierr.Append(fmt.Errorf("announce: %w", err), sub.Unsubscribe())
		}
	}

	n.mu.Lock()
	if !n.closed {
		n.ticker.Start()
		n.logger.Info("joined channel", zap.String("internalId", n.self.InternalID))
	}
	n.mu.Unlock()
	// The announcement was in flight until here; a leave parked by a
	// concurrent Close goes out now.
	n.flush(nil)
	return nil
}

// InternalID returns the generated identifier of this instance.
func (n *Node) InternalID() string { return n.self.InternalID }

// RegistrationID returns the alias, or "" when none was configured.
func (n *Node) RegistrationID() string { return n.self.RegistrationID }

// ID returns the preferred identifier: the alias when set, otherwise the
// internal id.
func (n *Node) ID() string { return n.self.Preferred() }

// ChannelName returns the channel this instance is joined to.
func (n *Node) ChannelName() string { return n.channel }

// Connected reports whether the instance has joined and not been closed.
func (n *Node) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.joined && !n.closed
}

// Peers returns the preferred identifiers of the currently known peers,
// sorted. It never includes this instance.
func (n *Node) Peers() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.table.PreferredIDs()
}

// OnMessage registers fn for delivered messages and returns a function that
// removes it.
func (n *Node) OnMessage(fn func(Message)) func() { return n.messages.Add(fn) }

// OnPeerConnected registers fn for peers entering the membership view.
func (n *Node) OnPeerConnected(fn func(id string)) func() { return n.connected.Add(fn) }

// OnPeerDisconnected registers fn for peers leaving the membership view,
// whether by announcement or by timeout.
func (n *Node) OnPeerDisconnected(fn func(id string)) func() { return n.disconnected.Add(fn) }

// OnError registers fn for asynchronous errors such as failing handlers.
func (n *Node) OnError(fn func(error)) func() { return n.errs.Add(fn) }

// Send publishes a user message to targetID, or to the whole channel when
// targetID is empty. A target may be given by alias or internal id and must
// be a known peer.
func (n *Node) Send(targetID, typ string, payload any) error {
	if err := n.usable(); err != nil {
		return err
	}
	if typ == "" {
		return fmt.Errorf("%w: empty type", ErrInvalidMessage)
	}
	if envelope.IsInternal(typ) {
		return fmt.Errorf("%w: type %q uses the reserved prefix %q", ErrInvalidMessage, typ, envelope.InternalPrefix)
	}
	raw, err := envelope.EncodePayload(payload)
	if err != nil {
		return err
	}

	n.mu.Lock()
	if err := n.checkUsable(); err != nil {
		n.mu.Unlock()
		return err
	}
	if targetID != "" {
		if _, ok := n.table.Resolve(targetID); !ok {
			n.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrPeerNotFound, targetID)
		}
	}
	env := envelope.New(n.self.Preferred(), targetID, typ, raw, n.clock.Now())
	n.mu.Unlock()

	if err := n.publish(env); err != nil {
		return fmt.Errorf("send %q: %w", typ, err)
	}
	return nil
}

func (n *Node) usable() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.checkUsable()
}

func (n *Node) checkUsable() error {
	switch {
	case n.closed:
		return ErrInstanceClosed
	case !n.joined:
		return ErrNotJoined
	}
	return nil
}

// Broadcast is Send with no target.
func (n *Node) Broadcast(typ string, payload any) error {
	return n.Send("", typ, payload)
}

// Close announces departure, stops heartbeating and detaches from the
// channel. It is idempotent. It waits for handlers running on other
// goroutines, so no notification fires after it returns; a handler may call
// Close itself.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	joined := n.joined
	leave := n.proto.Leave()
	n.table.Reset()
	n.pending = nil
	parked := n.inflight > 0
	if parked {
		n.leave = &leave
	}
	n.mu.Unlock()

	var err error
	if joined && !parked {
		err = n.publish(leave)
	}
	n.ticker.Stop()
	if joined {
		err = multierr.Append(err, n.sub.Unsubscribe())
	}
	if !n.handlers.Holds() {
		n.handlers.Wait()
	}

	n.messages.Clear()
	n.connected.Clear()
	n.disconnected.Clear()
	n.errs.Clear()
	n.metrics.SetPeers(n.channel, 0)

	n.logger.Info("left channel")
	return err
}
