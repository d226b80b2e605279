// Package router decides what an instance does with each inbound envelope.
package router

import (
	"github.com/peder1981/p2p-presence/internal/envelope"
	"github.com/peder1981/p2p-presence/internal/identity"
)

// Verdict is the routing decision for one inbound envelope.
type Verdict int

const (
	// DiscardSelf drops an echo of our own traffic.
	DiscardSelf Verdict = iota
	// Internal hands the envelope to the presence protocol.
	Internal
	// Deliver surfaces the envelope as a user message.
	Deliver
	// DropNotForUs drops user traffic addressed to someone else.
	DropNotForUs
)

// String returns the metric/log label of the verdict.
func (v Verdict) String() string {
	switch v {
	case DiscardSelf:
		return "self"
	case Internal:
		return "internal"
	case Deliver:
		return "deliver"
	case DropNotForUs:
		return "not_for_us"
	default:
		return "unknown"
	}
}

// Decide classifies env from the point of view of self.
//
// Echo suppression runs first, so our own protocol traffic never reaches
// the presence handlers. Internal types are never delivered to users,
// whatever their target.
func Decide(self identity.Identity, env envelope.Envelope) Verdict {
	if self.Matches(env.From) {
		return DiscardSelf
	}
	if envelope.IsInternal(env.Type) {
		return Internal
	}
	if env.To != "" && !self.Matches(env.To) {
		return DropNotForUs
	}
	return Deliver
}
