package envelope

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireFormatBroadcastIsNull(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	env := New("a", "", "ping", json.RawMessage(`{"n":1}`), at)

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"a","to":null,"type":"ping","payload":{"n":1},"timestamp":1700000000123}`, string(data))

	var back Envelope
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, env, back)
	assert.True(t, back.IsBroadcast())
	assert.Equal(t, at, back.Time())
}

func TestWireFormatTargeted(t *testing.T) {
	env := New("a", "bob", "ping", nil, time.UnixMilli(5))
	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"a","to":"bob","type":"ping","payload":null,"timestamp":5}`, string(data))
}

func TestIsInternal(t *testing.T) {
	for _, typ := range []string{TypeRegister, TypeDisconnect, TypeDiscover, TypeDiscoverResponse, TypeHeartbeat, TypeHeartbeatResponse} {
		assert.True(t, IsInternal(typ), typ)
	}
	assert.False(t, IsInternal("register"))
	assert.False(t, IsInternal("ping"))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Envelope{From: "a", Type: "x"}.Validate())
	assert.ErrorIs(t, Envelope{Type: "x"}.Validate(), ErrInvalidMessage)
	assert.ErrorIs(t, Envelope{From: "a"}.Validate(), ErrInvalidMessage)
}

func TestEncodePayload(t *testing.T) {
	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	tests := []struct {
		name    string
		payload any
		wantErr bool
	}{
		{name: "object", payload: map[string]int{"n": 1}},
		{name: "struct", payload: struct {
			B string `json:"b"`
			A int    `json:"a"`
		}{B: "x", A: 2}},
		{name: "nil", payload: nil},
		{name: "big int", payload: int64(9007199254740993)},
		{name: "cycle", payload: cyclic, wantErr: true},
		{name: "channel", payload: make(chan int), wantErr: true},
		{name: "func", payload: func() {}, wantErr: true},
		{name: "nan", payload: math.NaN(), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodePayload(tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessage)
				return
			}
			require.NoError(t, err)
			assert.True(t, json.Valid(raw))
		})
	}
}

func TestAnnouncementRoundTrip(t *testing.T) {
	env := NewInternal(TypeRegister, "id-1", "alice", "", time.UnixMilli(1))
	assert.Equal(t, "id-1", env.From)
	assert.JSONEq(t, `{"internalId":"id-1","registrationId":"alice"}`, string(env.Payload))

	a, err := DecodeAnnouncement(env)
	require.NoError(t, err)
	assert.Equal(t, "id-1", a.InternalID)
	assert.Equal(t, "alice", a.Alias())

	anon := NewInternal(TypeHeartbeat, "id-2", "", "", time.UnixMilli(1))
	assert.JSONEq(t, `{"internalId":"id-2","registrationId":null}`, string(anon.Payload))
	a, err = DecodeAnnouncement(anon)
	require.NoError(t, err)
	assert.Equal(t, "", a.Alias())
}

func TestDecodeAnnouncementRejectsGarbage(t *testing.T) {
	_, err := DecodeAnnouncement(Envelope{Payload: json.RawMessage(`"nope"`)})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = DecodeAnnouncement(Envelope{Payload: json.RawMessage(`{"registrationId":"x"}`)})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}
