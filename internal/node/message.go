package node

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/peder1981/p2p-presence/internal/envelope"
)

// Message is a user envelope delivered to this instance.
type Message struct {
	// From is the sender's preferred identifier.
	From string
	// To is empty for broadcasts.
	To        string
	Type      string
	Payload   json.RawMessage
	Timestamp time.Time
}

func newMessage(env envelope.Envelope) Message {
	return Message{
		From:      env.From,
		To:        env.To,
		Type:      env.Type,
		Payload:   bytes.Clone(env.Payload),
		Timestamp: env.Time(),
	}
}

// Broadcast reports whether the message was sent to the whole channel.
func (m Message) Broadcast() bool {
	return m.To == ""
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(m.Payload, v)
}
