// Package transport defines the broadcast medium a presence instance rides on
// and provides two implementations: an in-process Hub and LAN UDP multicast.
//
// A medium delivers every published envelope to every subscriber of the
// channel, the publisher included, in publish order per sender. Nothing is
// delivered to a subscription after it has been cancelled.
package transport

import (
	"errors"

	"github.com/peder1981/p2p-presence/internal/envelope"
)

// ErrTransportUnsupported means the medium cannot run in this environment.
var ErrTransportUnsupported = errors.New("broadcast transport unsupported")

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("transport closed")

// Handler receives one envelope. It must not block for long: it runs on the
// medium's delivery path.
type Handler func(envelope.Envelope)

// Subscription is an attached handler.
type Subscription interface {
	Unsubscribe() error
}

// Transport is a named-channel broadcast medium.
type Transport interface {
	Subscribe(channel string, h Handler) (Subscription, error)
	Publish(channel string, env envelope.Envelope) error
}

// subscription is shared by both implementations.
type subscription struct {
	cancel func() error
}

func (s *subscription) Unsubscribe() error {
	return s.cancel()
}
