// Package envelope defines the wire shape shared by all traffic on a presence channel.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// InternalPrefix namespaces the presence protocol's reserved types.
const InternalPrefix = "__presence:"

// Reserved internal types.
const (
	TypeRegister          = InternalPrefix + "register"
	TypeDisconnect        = InternalPrefix + "disconnect"
	TypeDiscover          = InternalPrefix + "discover"
	TypeDiscoverResponse  = InternalPrefix + "discover_response"
	TypeHeartbeat         = InternalPrefix + "heartbeat"
	TypeHeartbeatResponse = InternalPrefix + "heartbeat_response"
)

// ErrInvalidMessage is returned for envelopes or payloads that cannot be sent.
var ErrInvalidMessage = errors.New("invalid message")

// Envelope is one unit of traffic. Envelopes are values: once built they are
// passed around by copy and never modified by anyone but their author.
type Envelope struct {
	From      string          // sender id
	To        string          // target id, empty for broadcast
	Type      string          // message type
	Payload   json.RawMessage // encoded payload
	Timestamp int64           // send time in unix milliseconds
}

// wireEnvelope is the JSON form; To is a pointer so broadcast encodes as null.
type wireEnvelope struct {
	From      string          `json:"from"`
	To        *string         `json:"to"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// New builds an envelope stamped with at.
func New(from, to, typ string, payload json.RawMessage, at time.Time) Envelope {
	return Envelope{
		From:      from,
		To:        to,
		Type:      typ,
		Payload:   payload,
		Timestamp: at.UnixMilli(),
	}
}

// IsInternal reports whether typ belongs to the reserved protocol namespace.
func IsInternal(typ string) bool {
	return strings.HasPrefix(typ, InternalPrefix)
}

// IsBroadcast reports whether the envelope has no target.
func (e Envelope) IsBroadcast() bool {
	return e.To == ""
}

// Time returns the sender's timestamp.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Validate checks the fields every envelope must carry.
func (e Envelope) Validate() error {
	if e.From == "" {
		return fmt.Errorf("%w: missing sender", ErrInvalidMessage)
	}
	if e.Type == "" {
		return fmt.Errorf("%w: empty type", ErrInvalidMessage)
	}
	return nil
}

// MarshalJSON encodes the envelope in its wire form.
func (e Envelope) MarshalJSON() ([]byte, error) {
	w := wireEnvelope{
		From:      e.From,
		Type:      e.Type,
		Payload:   e.Payload,
		Timestamp: e.Timestamp,
	}
	if e.To != "" {
		to := e.To
		w.To = &to
	}
	if len(w.Payload) == 0 {
		w.Payload = json.RawMessage("null")
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.From = w.From
	e.To = ""
	if w.To != nil {
		e.To = *w.To
	}
	e.Type = w.Type
	e.Payload = w.Payload
	e.Timestamp = w.Timestamp
	return nil
}

// EncodePayload serializes a user payload. It fails with ErrInvalidMessage
// when v has no JSON form (cycles, channels, funcs, NaN) or when the encoded
// form does not decode back to an equivalent value.
func EncodePayload(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not serializable: %v", ErrInvalidMessage, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: payload does not round-trip: %v", ErrInvalidMessage, err)
	}
	again, err := json.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: payload does not round-trip: %v", ErrInvalidMessage, err)
	}
	if !sameJSON(data, again) {
		return nil, fmt.Errorf("%w: payload does not round-trip", ErrInvalidMessage)
	}
	return json.RawMessage(data), nil
}

// sameJSON compares two documents after normalizing key order.
func sameJSON(a, b []byte) bool {
	na, err := normalize(a)
	if err != nil {
		return false
	}
	nb, err := normalize(b)
	if err != nil {
		return false
	}
	return bytes.Equal(na, nb)
}

func normalize(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
