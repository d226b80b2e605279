// Package presence implements the register/discover/heartbeat/leave exchange
// that keeps a peer table in step with the instances on a channel.
//
// Per peer the protocol moves Unknown -> Known -> Removed. Register,
// discover responses and heartbeats (including responses) move an unknown
// peer to Known and refresh a known one; a disconnect or a stale sweep
// removes it. Removed is terminal for that table entry, but the same
// internal id announcing itself again simply creates a fresh entry.
package presence

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/peder1981/p2p-presence/internal/envelope"
	"github.com/peder1981/p2p-presence/internal/identity"
	"github.com/peder1981/p2p-presence/internal/peertable"
)

// Protocol applies presence traffic to a peer table. It is not safe for
// concurrent use.
type Protocol struct {
	self       identity.Identity
	table      *peertable.Table
	clock      clock.Clock
	staleAfter time.Duration
	logger     *zap.Logger
}

// New returns a protocol bound to table.
func New(self identity.Identity, table *peertable.Table, clk clock.Clock, staleAfter time.Duration, logger *zap.Logger) *Protocol {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Protocol{
		self:       self,
		table:      table,
		clock:      clk,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Announce returns the envelopes a new instance broadcasts: a register for
// itself and a discover asking everyone else to re-announce.
func (p *Protocol) Announce() []envelope.Envelope {
	return []envelope.Envelope{
		p.build(envelope.TypeRegister, ""),
		p.build(envelope.TypeDiscover, ""),
	}
}

// Heartbeat returns a heartbeat broadcast from self.
func (p *Protocol) Heartbeat() envelope.Envelope {
	return p.build(envelope.TypeHeartbeat, "")
}

// Leave returns the disconnect broadcast naming self.
func (p *Protocol) Leave() envelope.Envelope {
	return p.build(envelope.TypeDisconnect, "")
}

// Handle applies one internal envelope and returns the replies to publish.
// Malformed, self-describing and unknown internal envelopes are ignored.
func (p *Protocol) Handle(env envelope.Envelope) []envelope.Envelope {
	a, err := envelope.DecodeAnnouncement(env)
	if err != nil {
		p.logger.Debug("ignoring malformed presence envelope",
			zap.String("type", env.Type), zap.String("from", env.From), zap.Error(err))
		return nil
	}
	if a.InternalID == p.self.InternalID {
		return nil
	}

	switch env.Type {
	case envelope.TypeRegister, envelope.TypeDiscoverResponse, envelope.TypeHeartbeatResponse:
		p.seen(a)
		return nil

	case envelope.TypeHeartbeat:
		// A bare heartbeat is enough to (re)learn a peer whose register was lost.
		p.seen(a)
		return []envelope.Envelope{p.build(envelope.TypeHeartbeatResponse, a.InternalID)}

	case envelope.TypeDiscover:
		return []envelope.Envelope{p.build(envelope.TypeDiscoverResponse, a.InternalID)}

	case envelope.TypeDisconnect:
		if peer, ok := p.table.Remove(a.InternalID); ok {
			p.logger.Info("peer left", zap.String("peer", peer.Preferred()), zap.String("reason", "disconnect"))
		}
		return nil

	default:
		p.logger.Debug("ignoring unknown presence type", zap.String("type", env.Type), zap.String("from", env.From))
		return nil
	}
}

// Sweep removes peers silent for longer than the staleness threshold.
func (p *Protocol) Sweep() []peertable.Peer {
	removed := p.table.Sweep(p.clock.Now(), p.staleAfter)
	for _, peer := range removed {
		p.logger.Info("peer left", zap.String("peer", peer.Preferred()), zap.String("reason", "stale"),
			zap.Time("lastSeen", peer.LastSeen))
	}
	return removed
}

func (p *Protocol) seen(a envelope.Announcement) {
	peer, created := p.table.Upsert(a.InternalID, a.Alias(), p.clock.Now())
	if created {
		p.logger.Info("peer joined", zap.String("peer", peer.Preferred()), zap.String("internalId", peer.InternalID))
	}
}

func (p *Protocol) build(typ, to string) envelope.Envelope {
	return envelope.NewInternal(typ, p.self.InternalID, p.self.RegistrationID, to, p.clock.Now())
}
