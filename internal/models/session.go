package models

import (
	"time"

	"github.com/google/uuid"
)

// Session represents an identity's authenticated session.
// The session ID travels as the jti claim of the access token, all other state lives server-side.
type Session struct {
	SessionID  uuid.UUID // UUIDv7
	IdentityID uuid.UUID // Who is logged in

	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time

	// Optional audit metadata
	UserAgent string
	IPAddress string
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
