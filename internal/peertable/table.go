// Package peertable holds the membership view of one presence instance.
//
// A Table is not safe for concurrent use; the owning instance serializes
// every call.
package peertable

import (
	"sort"
	"time"
)

// Peer is one other known context on the channel.
type Peer struct {
	InternalID     string
	RegistrationID string
	LastSeen       time.Time

	aliasSeq uint64 // when RegistrationID was last written
}

// Preferred returns the alias if set, else the internal id.
func (p Peer) Preferred() string {
	if p.RegistrationID != "" {
		return p.RegistrationID
	}
	return p.InternalID
}

// Hooks are invoked synchronously from the mutating call that caused them.
type Hooks struct {
	OnJoin  func(Peer)
	OnLeave func(Peer)
}

// Table maps internal ids to peer state.
type Table struct {
	peers map[string]*Peer
	hooks Hooks
	seq   uint64
}

// New returns an empty table.
func New(hooks Hooks) *Table {
	return &Table{
		peers: make(map[string]*Peer),
		hooks: hooks,
	}
}

// Upsert inserts a peer or refreshes an existing one. It returns the
// resulting entry and true when the peer was not known before.
//
// An empty registrationID never clears a known alias.
func (t *Table) Upsert(internalID, registrationID string, seenAt time.Time) (Peer, bool) {
	if p, ok := t.peers[internalID]; ok {
		if seenAt.After(p.LastSeen) {
			p.LastSeen = seenAt
		}
		if registrationID != "" && registrationID != p.RegistrationID {
			t.seq++
			p.RegistrationID = registrationID
			p.aliasSeq = t.seq
		}
		return *p, false
	}

	t.seq++
	p := &Peer{
		InternalID:     internalID,
		RegistrationID: registrationID,
		LastSeen:       seenAt,
		aliasSeq:       t.seq,
	}
	t.peers[internalID] = p
	if t.hooks.OnJoin != nil {
		t.hooks.OnJoin(*p)
	}
	return *p, true
}

// Remove deletes a peer. Removing an unknown peer is a no-op.
func (t *Table) Remove(internalID string) (Peer, bool) {
	p, ok := t.peers[internalID]
	if !ok {
		return Peer{}, false
	}
	delete(t.peers, internalID)
	if t.hooks.OnLeave != nil {
		t.hooks.OnLeave(*p)
	}
	return *p, true
}

// Resolve finds the peer named by id, matching the internal id first and
// the alias second. Aliases are not unique; the most recently announced
// holder wins.
func (t *Table) Resolve(id string) (Peer, bool) {
	if id == "" {
		return Peer{}, false
	}
	if p, ok := t.peers[id]; ok {
		return *p, true
	}
	var best *Peer
	for _, p := range t.peers {
		if p.RegistrationID != id {
			continue
		}
		if best == nil || p.aliasSeq > best.aliasSeq {
			best = p
		}
	}
	if best == nil {
		return Peer{}, false
	}
	return *best, true
}

// Sweep removes every peer silent for longer than timeout and returns them.
func (t *Table) Sweep(now time.Time, timeout time.Duration) []Peer {
	var stale []string
	for id, p := range t.peers {
		if now.Sub(p.LastSeen) > timeout {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)

	removed := make([]Peer, 0, len(stale))
	for _, id := range stale {
		if p, ok := t.Remove(id); ok {
			removed = append(removed, p)
		}
	}
	return removed
}

// Len returns the number of known peers.
func (t *Table) Len() int {
	return len(t.peers)
}

// Peers returns a snapshot ordered by internal id.
func (t *Table) Peers() []Peer {
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InternalID < out[j].InternalID })
	return out
}

// PreferredIDs returns the sorted preferred identifiers of all peers.
func (t *Table) PreferredIDs() []string {
	ids := make([]string, 0, len(t.peers))
	for _, p := range t.peers {
		ids = append(ids, p.Preferred())
	}
	sort.Strings(ids)
	return ids
}

// Reset drops every entry without firing hooks.
func (t *Table) Reset() {
	t.peers = make(map[string]*Peer)
}
