package node

import (
	"errors"
	"fmt"

	"github.com/peder1981/p2p-presence/internal/envelope"
	"github.com/peder1981/p2p-presence/internal/transport"
)

var (
	// ErrTransportUnsupported means the broadcast medium is unavailable; no
	// instance is created.
	ErrTransportUnsupported = transport.ErrTransportUnsupported
	// ErrInvalidMessage is returned by Send for an empty or reserved type or
	// a payload that cannot be serialized.
	ErrInvalidMessage = envelope.ErrInvalidMessage
	// ErrPeerNotFound is returned by Send when the target is not in the local
	// membership view.
	ErrPeerNotFound = errors.New("peer not found")
	// ErrInstanceClosed is returned by operations on a closed instance.
	ErrInstanceClosed = errors.New("instance closed")
	// ErrNotJoined is returned by Send on an instance from Prepare that has
	// not joined its channel yet.
	ErrNotJoined = errors.New("instance not joined")
	// ErrHandlerFailure marks errors reported for panicking user handlers.
	ErrHandlerFailure = errors.New("handler failure")
	// ErrInvalidOptions is returned by New for unusable options.
	ErrInvalidOptions = errors.New("invalid options")
)

// HandlerError reports a user handler that panicked during dispatch. It is
// delivered to error listeners, never returned to the transport.
type HandlerError struct {
	Event string
	Value any
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler failed: %v", e.Event, e.Value)
}

// Unwrap exposes ErrHandlerFailure and, when the handler panicked with an
// error, that error.
func (e *HandlerError) Unwrap() []error {
	if err, ok := e.Value.(error); ok {
		return []error{ErrHandlerFailure, err}
	}
	return []error{ErrHandlerFailure}
}
