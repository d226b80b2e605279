// Package identity generates the per-instance identifiers used on a presence channel.
package identity

import (
	"github.com/google/uuid"
)

// Identity is the immutable pair of identifiers an instance announces.
type Identity struct {
	// InternalID is generated once per instance and never reused.
	InternalID string
	// RegistrationID is the optional user-chosen alias. Empty means unset.
	RegistrationID string
}

// New returns an Identity with a fresh internal id.
//
// The id is a UUIDv7: a millisecond timestamp prefix followed by random bits,
// so instances started concurrently on the same channel do not collide in
// practice and no coordination is needed to hand ids out.
func New(registrationID string) Identity {
	return Identity{
		InternalID:     generateInternalID(),
		RegistrationID: registrationID,
	}
}

func generateInternalID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Preferred returns the alias if set, else the internal id.
func (i Identity) Preferred() string {
	if i.RegistrationID != "" {
		return i.RegistrationID
	}
	return i.InternalID
}

// Matches reports whether id names this identity by either identifier.
func (i Identity) Matches(id string) bool {
	if id == "" {
		return false
	}
	return id == i.InternalID || (i.RegistrationID != "" && id == i.RegistrationID)
}
