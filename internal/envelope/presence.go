package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// Announcement is the payload carried by every internal envelope.
type Announcement struct {
	InternalID     string  `json:"internalId"`
	RegistrationID *string `json:"registrationId"`
}

// NewAnnouncement builds an announcement; an empty alias encodes as null.
func NewAnnouncement(internalID, registrationID string) Announcement {
	a := Announcement{InternalID: internalID}
	if registrationID != "" {
		alias := registrationID
		a.RegistrationID = &alias
	}
	return a
}

// Alias returns the registration id, or "" when unset.
func (a Announcement) Alias() string {
	if a.RegistrationID == nil {
		return ""
	}
	return *a.RegistrationID
}

// NewInternal builds a reserved-type envelope sent from internalID.
func NewInternal(typ, internalID, registrationID, to string, at time.Time) Envelope {
	payload, err := json.Marshal(NewAnnouncement(internalID, registrationID))
	if err != nil {
		// Announcement only holds strings.
		panic(fmt.Sprintf("envelope: encode announcement: %v", err))
	}
	return New(internalID, to, typ, payload, at)
}

// DecodeAnnouncement extracts the announcement from an internal envelope.
func DecodeAnnouncement(e Envelope) (Announcement, error) {
	var a Announcement
	if err := json.Unmarshal(e.Payload, &a); err != nil {
		return Announcement{}, fmt.Errorf("%w: bad announcement: %v", ErrInvalidMessage, err)
	}
	if a.InternalID == "" {
		return Announcement{}, fmt.Errorf("%w: announcement without internal id", ErrInvalidMessage)
	}
	return a, nil
}
