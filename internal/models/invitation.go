package models

import (
	"time"

	"github.com/google/uuid"
)

// Invitation grants the holder of Token a role in OrgID once accepted.
type Invitation struct {
	InvitationID uuid.UUID
	OrgID        uuid.UUID
	Email        string
	Role         string
	Token        string // base58, single use
	InvitedBy    uuid.UUID

	CreatedAt  time.Time
	ExpiresAt  time.Time
	AcceptedAt *time.Time
}

// IsExpired returns true if the invitation can no longer be accepted because of its age.
func (i *Invitation) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}

// IsAccepted returns true if the invitation has already been used.
func (i *Invitation) IsAccepted() bool {
	return i.AcceptedAt != nil
}
