package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is an authentication principal owned by the identity service.
// Identities are only ever removed through the administrative delete primitive.
type Identity struct {
	IdentityID   uuid.UUID // UUIDv7
	Email        string    // unique, stored lower-cased
	PasswordHash string    // bcrypt

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}

// Profile is the denormalized user record keyed by identity ID.
type Profile struct {
	IdentityID uuid.UUID
	Email      string
	FullName   *string
	AvatarURL  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
