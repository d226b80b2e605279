package presence

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peder1981/p2p-presence/internal/envelope"
	"github.com/peder1981/p2p-presence/internal/identity"
	"github.com/peder1981/p2p-presence/internal/peertable"
)

type harness struct {
	clock  *clock.Mock
	table  *peertable.Table
	proto  *Protocol
	joined []string
	left   []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{clock: clock.NewMock()}
	h.table = peertable.New(peertable.Hooks{
		OnJoin:  func(p peertable.Peer) { h.joined = append(h.joined, p.Preferred()) },
		OnLeave: func(p peertable.Peer) { h.left = append(h.left, p.Preferred()) },
	})
	self := identity.Identity{InternalID: "id-self", RegistrationID: "me"}
	h.proto = New(self, h.table, h.clock, 15*time.Second, nil)
	return h
}

func (h *harness) from(typ, internalID, alias, to string) envelope.Envelope {
	return envelope.NewInternal(typ, internalID, alias, to, h.clock.Now())
}

func TestAnnounce(t *testing.T) {
	h := newHarness(t)
	out := h.proto.Announce()
	require.Len(t, out, 2)
	assert.Equal(t, envelope.TypeRegister, out[0].Type)
	assert.Equal(t, envelope.TypeDiscover, out[1].Type)
	for _, env := range out {
		assert.Equal(t, "id-self", env.From)
		assert.True(t, env.IsBroadcast())
		a, err := envelope.DecodeAnnouncement(env)
		require.NoError(t, err)
		assert.Equal(t, "me", a.Alias())
	}
}

func TestRegisterJoinsOnce(t *testing.T) {
	h := newHarness(t)
	assert.Empty(t, h.proto.Handle(h.from(envelope.TypeRegister, "id-b", "bob", "")))
	assert.Empty(t, h.proto.Handle(h.from(envelope.TypeRegister, "id-b", "bob", "")))
	assert.Equal(t, []string{"bob"}, h.joined)
	assert.Equal(t, []string{"bob"}, h.table.PreferredIDs())
}

func TestDiscoverResponseJoins(t *testing.T) {
	h := newHarness(t)
	h.proto.Handle(h.from(envelope.TypeDiscoverResponse, "id-b", "", "id-self"))
	assert.Equal(t, []string{"id-b"}, h.joined)
}

func TestDiscoverIsAnswered(t *testing.T) {
	h := newHarness(t)
	out := h.proto.Handle(h.from(envelope.TypeDiscover, "id-b", "bob", ""))
	require.Len(t, out, 1)
	assert.Equal(t, envelope.TypeDiscoverResponse, out[0].Type)
	assert.Equal(t, "id-b", out[0].To)
	assert.Equal(t, "id-self", out[0].From)
	assert.Empty(t, h.joined, "a discover request alone does not register its sender")
}

func TestHeartbeatLearnsAndIsAnswered(t *testing.T) {
	h := newHarness(t)
	out := h.proto.Handle(h.from(envelope.TypeHeartbeat, "id-b", "", ""))
	require.Len(t, out, 1)
	assert.Equal(t, envelope.TypeHeartbeatResponse, out[0].Type)
	assert.Equal(t, "id-b", out[0].To)
	assert.Equal(t, []string{"id-b"}, h.joined)

	// A later register supplies the alias without a second join.
	h.proto.Handle(h.from(envelope.TypeRegister, "id-b", "bob", ""))
	assert.Equal(t, []string{"id-b"}, h.joined)
	assert.Equal(t, []string{"bob"}, h.table.PreferredIDs())
}

func TestHeartbeatResponseRefreshes(t *testing.T) {
	h := newHarness(t)
	h.proto.Handle(h.from(envelope.TypeRegister, "id-b", "", ""))
	h.clock.Add(10 * time.Second)
	assert.Empty(t, h.proto.Handle(h.from(envelope.TypeHeartbeatResponse, "id-b", "", "id-self")))

	h.clock.Add(10 * time.Second)
	assert.Empty(t, h.proto.Sweep())
	assert.Equal(t, []string{"id-b"}, h.table.PreferredIDs())
}

func TestDisconnectThenSweepLeavesOnce(t *testing.T) {
	h := newHarness(t)
	h.proto.Handle(h.from(envelope.TypeRegister, "id-b", "bob", ""))
	h.proto.Handle(h.from(envelope.TypeDisconnect, "id-b", "bob", ""))
	h.proto.Handle(h.from(envelope.TypeDisconnect, "id-b", "bob", ""))

	h.clock.Add(time.Minute)
	assert.Empty(t, h.proto.Sweep())
	assert.Equal(t, []string{"bob"}, h.left)
}

func TestSweepRemovesSilentPeers(t *testing.T) {
	h := newHarness(t)
	h.proto.Handle(h.from(envelope.TypeRegister, "id-b", "bob", ""))
	h.clock.Add(15 * time.Second)
	assert.Empty(t, h.proto.Sweep(), "exactly at the threshold is not stale")

	h.clock.Add(time.Millisecond)
	removed := h.proto.Sweep()
	require.Len(t, removed, 1)
	assert.Equal(t, "bob", removed[0].Preferred())
	assert.Equal(t, []string{"bob"}, h.left)
}

func TestRejoinAfterRemoval(t *testing.T) {
	h := newHarness(t)
	h.proto.Handle(h.from(envelope.TypeRegister, "id-b", "bob", ""))
	h.proto.Handle(h.from(envelope.TypeDisconnect, "id-b", "", ""))
	h.proto.Handle(h.from(envelope.TypeRegister, "id-b", "bob", ""))
	assert.Equal(t, []string{"bob", "bob"}, h.joined)
}

func TestIgnoresSelfAndGarbage(t *testing.T) {
	h := newHarness(t)
	assert.Empty(t, h.proto.Handle(h.from(envelope.TypeHeartbeat, "id-self", "", "")))
	assert.Empty(t, h.proto.Handle(envelope.Envelope{From: "id-b", Type: envelope.TypeRegister, Payload: []byte(`[]`)}))
	assert.Empty(t, h.proto.Handle(h.from(envelope.InternalPrefix+"gossip", "id-b", "", "")))
	assert.Empty(t, h.joined)
}

func TestHeartbeatAndLeaveEnvelopes(t *testing.T) {
	h := newHarness(t)
	hb := h.proto.Heartbeat()
	assert.Equal(t, envelope.TypeHeartbeat, hb.Type)
	assert.Equal(t, "id-self", hb.From)

	leave := h.proto.Leave()
	assert.Equal(t, envelope.TypeDisconnect, leave.Type)
	a, err := envelope.DecodeAnnouncement(leave)
	require.NoError(t, err)
	assert.Equal(t, "id-self", a.InternalID)
}
