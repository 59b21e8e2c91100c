package models

import "time"

// Credential is the engine's public view of a stored credential. Secret data
// is never returned by the engine.
type Credential struct {
	ID        ID         `json:"id"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// CredentialList is the engine's credential listing.
type CredentialList struct {
	Data       []*Credential `json:"data"`
	NextCursor string        `json:"nextCursor,omitempty"`
}
