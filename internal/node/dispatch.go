package node

import (
	"go.uber.org/zap"

	"github.com/peder1981/p2p-presence/internal/envelope"
	"github.com/peder1981/p2p-presence/internal/events"
	"github.com/peder1981/p2p-presence/internal/peertable"
	"github.com/peder1981/p2p-presence/internal/router"
)

// receive is the transport handler for the channel.
func (n *Node) receive(env envelope.Envelope) {
	if err := env.Validate(); err != nil {
		n.logger.Debug("dropping invalid envelope", zap.Error(err))
		return
	}
	verdict := router.Decide(n.self, env)
	n.metrics.Received(n.channel, verdict.String())

	switch verdict {
	case router.Internal:
		n.mu.Lock()
		if n.closed {
			n.mu.Unlock()
			return
		}
		replies := n.proto.Handle(env)
		notes := n.takePending()
		if len(replies) > 0 {
			n.inflight++
		}
		n.mu.Unlock()

		if len(replies) > 0 {
			n.flush(replies)
		}
		n.run(notes)

	case router.Deliver:
		msg := newMessage(env)
		dispatch(n, n.messages, msg, n.opts.OnMessage)

	default:
		n.logger.Debug("dropping envelope", zap.String("verdict", verdict.String()),
			zap.String("type", env.Type), zap.String("from", env.From))
	}
}

// tick sweeps stale peers and then heartbeats. Sweeping first means the
// departures it finds are reported before our heartbeat goes out.
func (n *Node) tick() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.leaveReason = "stale"
	n.proto.Sweep()
	n.leaveReason = "disconnect"
	heartbeat := n.proto.Heartbeat()
	notes := n.takePending()
	n.inflight++
	n.mu.Unlock()

	n.run(notes)
	n.flush([]envelope.Envelope{heartbeat})
}

// flush publishes protocol envelopes counted in inflight, then sends a leave
// parked by Close if it was the last batch outstanding.
func (n *Node) flush(envs []envelope.Envelope) {
	for _, env := range envs {
		n.publishAsync(env)
	}

	n.mu.Lock()
	n.inflight--
	var leave *envelope.Envelope
	if n.inflight == 0 {
		leave, n.leave = n.leave, nil
	}
	n.mu.Unlock()
	if leave != nil {
		if err := n.publish(*leave); err != nil {
			n.logger.Warn("publish leave failed", zap.Error(err))
		}
	}
}

// peerJoined and peerLeft are table hooks; they run with mu held.
func (n *Node) peerJoined(p peertable.Peer) {
	n.metrics.PeerJoined(n.channel)
	n.metrics.SetPeers(n.channel, n.table.Len())
	id := p.Preferred()
	n.pending = append(n.pending, func() {
		dispatch(n, n.connected, id, n.opts.OnPeerConnected)
	})
}

func (n *Node) peerLeft(p peertable.Peer) {
	n.metrics.PeerLeft(n.channel, n.leaveReason)
	n.metrics.SetPeers(n.channel, n.table.Len())
	id := p.Preferred()
	n.pending = append(n.pending, func() {
		dispatch(n, n.disconnected, id, n.opts.OnPeerDisconnected)
	})
}

func (n *Node) takePending() []func() {
	notes := n.pending
	n.pending = nil
	return notes
}

// run dispatches collected notifications unless the node closed meanwhile.
func (n *Node) run(notes []func()) {
	for _, note := range notes {
		if !n.Connected() {
			return
		}
		note()
	}
}

func (n *Node) publish(env envelope.Envelope) error {
	if err := n.tr.Publish(n.channel, env); err != nil {
		return err
	}
	class := "user"
	if envelope.IsInternal(env.Type) {
		class = "internal"
	}
	n.metrics.Sent(n.channel, class)
	return nil
}

// publishAsync publishes protocol traffic nobody waits on; failures go to
// the error listeners.
func (n *Node) publishAsync(env envelope.Envelope) {
	if err := n.publish(env); err != nil {
		n.logger.Warn("publish failed", zap.String("type", env.Type), zap.Error(err))
		n.reportError(err)
	}
}

// dispatch notifies subscribed listeners, then the configured callback.
// Panics are contained and reported as HandlerError. Nothing is called once
// the node is closed.
func dispatch[T any](n *Node, l *events.Listeners[T], v T, callback func(T)) {
	defer n.handlers.Enter()()
	if !n.Connected() {
		return
	}
	failures := l.Emit(v)
	if n.Connected() {
		if f, ok := events.Call(l.Name(), callback, v); !ok {
			failures = append(failures, f)
		}
	}
	for _, f := range failures {
		n.metrics.HandlerFailed(f.Event)
		n.logger.Warn("handler failed", zap.String("event", f.Event), zap.Any("panic", f.Value))
		n.reportError(&HandlerError{Event: f.Event, Value: f.Value})
	}
}

// reportError notifies error listeners. A failing error handler is only
// logged.
func (n *Node) reportError(err error) {
	defer n.handlers.Enter()()
	if !n.Connected() {
		return
	}
	failures := n.errs.Emit(err)
	if n.Connected() {
		if f, ok := events.Call(n.errs.Name(), n.opts.OnError, err); !ok {
			failures = append(failures, f)
		}
	}
	for _, f := range failures {
		n.metrics.HandlerFailed(f.Event)
		n.logger.Error("error handler failed", zap.Any("panic", f.Value), zap.NamedError("reported", err))
	}
}
