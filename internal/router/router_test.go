package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/peder1981/p2p-presence/internal/envelope"
	"github.com/peder1981/p2p-presence/internal/identity"
)

func TestDecide(t *testing.T) {
	self := identity.Identity{InternalID: "id-c", RegistrationID: "carol"}

	tests := []struct {
		name string
		env  envelope.Envelope
		want Verdict
	}{
		{"echo by internal id", envelope.Envelope{From: "id-c", Type: "ping"}, DiscardSelf},
		{"echo by alias", envelope.Envelope{From: "carol", Type: "ping"}, DiscardSelf},
		{"echo of internal traffic", envelope.Envelope{From: "id-c", Type: envelope.TypeHeartbeat}, DiscardSelf},
		{"internal broadcast", envelope.Envelope{From: "id-a", Type: envelope.TypeRegister}, Internal},
		{"internal targeted elsewhere", envelope.Envelope{From: "id-a", To: "id-b", Type: envelope.TypeHeartbeatResponse}, Internal},
		{"internal targeted at us", envelope.Envelope{From: "id-a", To: "carol", Type: envelope.TypeDiscoverResponse}, Internal},
		{"broadcast", envelope.Envelope{From: "id-a", Type: "ping"}, Deliver},
		{"targeted by internal id", envelope.Envelope{From: "id-a", To: "id-c", Type: "ping"}, Deliver},
		{"targeted by alias", envelope.Envelope{From: "id-a", To: "carol", Type: "ping"}, Deliver},
		{"targeted elsewhere", envelope.Envelope{From: "id-a", To: "bob", Type: "ping"}, DropNotForUs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(self, tt.env))
		})
	}
}

func TestDecideWithoutAlias(t *testing.T) {
	self := identity.Identity{InternalID: "id-c"}
	// An empty target is a broadcast, not a match on an unset alias.
	assert.Equal(t, Deliver, Decide(self, envelope.Envelope{From: "id-a", Type: "ping"}))
	assert.Equal(t, DropNotForUs, Decide(self, envelope.Envelope{From: "id-a", To: "carol", Type: "ping"}))
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "self", DiscardSelf.String())
	assert.Equal(t, "internal", Internal.String())
	assert.Equal(t, "deliver", Deliver.String())
	assert.Equal(t, "not_for_us", DropNotForUs.String())
	assert.Equal(t, "unknown", Verdict(42).String())
}
