package transport

import (
	"fmt"
	"slices"
	"sync"

	"github.com/peder1981/p2p-presence/internal/envelope"
)

// Hub is an in-process broadcast medium.
//
// Publish enqueues the envelope for every current subscriber of the channel
// and, unless another goroutine is already draining, delivers the queue on
// the calling goroutine. Envelopes published from inside a handler are
// queued behind the one being delivered, so delivery order is the global
// publish order and handlers never recurse into each other.
type Hub struct {
	mu       sync.Mutex
	next     uint64
	channels map[string]map[uint64]Handler
	queue    []delivery
	draining bool
	closed   bool
}

type delivery struct {
	channel string
	id      uint64
	env     envelope.Envelope
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[uint64]Handler)}
}

// Subscribe attaches h to channel.
func (h *Hub) Subscribe(channel string, fn Handler) (Subscription, error) {
	if channel == "" {
		return nil, fmt.Errorf("subscribe: empty channel name")
	}
	if fn == nil {
		return nil, fmt.Errorf("subscribe: nil handler")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	h.next++
	id := h.next
	subs := h.channels[channel]
	if subs == nil {
		subs = make(map[uint64]Handler)
		h.channels[channel] = subs
	}
	subs[id] = fn

	var once sync.Once
	return &subscription{cancel: func() error {
		once.Do(func() { h.remove(channel, id) })
		return nil
	}}, nil
}

func (h *Hub) remove(channel string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.channels[channel]
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
}

// Publish delivers env to every subscriber of channel.
func (h *Hub) Publish(channel string, env envelope.Envelope) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	ids := make([]uint64, 0, len(h.channels[channel]))
	for id := range h.channels[channel] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		h.queue = append(h.queue, delivery{channel: channel, id: id, env: env})
	}
	if h.draining {
		h.mu.Unlock()
		return nil
	}
	h.draining = true
	h.mu.Unlock()

	h.drain()
	return nil
}

func (h *Hub) drain() {
	for {
		h.mu.Lock()
		if len(h.queue) == 0 {
			h.draining = false
			h.mu.Unlock()
			return
		}
		d := h.queue[0]
		h.queue = h.queue[1:]
		fn := h.channels[d.channel][d.id]
		h.mu.Unlock()

		// Subscribers that left after the publish get nothing.
		if fn != nil {
			fn(d.env)
		}
	}
}

// Subscribers returns the number of handlers attached to channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[channel])
}

// Close detaches everyone and rejects further use.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.channels = make(map[string]map[uint64]Handler)
	h.queue = nil
	return nil
}
