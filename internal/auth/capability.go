package auth

import (
	"crypto/hmac"
	"errors"

	"github.com/google/uuid"
)

// UserSession is proof that the caller presented a valid, live session for an identity.
// It can only be obtained from a SessionManager and grants nothing beyond acting as that identity.
type UserSession struct {
	identityID uuid.UUID
	sessionID  uuid.UUID
	email      string
}

// IdentityID returns the identity the session belongs to.
func (u UserSession) IdentityID() uuid.UUID { return u.identityID }

// SessionID returns the server-side session ID.
func (u UserSession) SessionID() uuid.UUID { return u.sessionID }

// Email returns the identity's email at the time the session was issued.
func (u UserSession) Email() string { return u.email }

// IsZero reports whether the value was never issued.
func (u UserSession) IsZero() bool { return u.identityID == uuid.Nil }

// ErrMissingServiceRoleKey is returned when no administrative credential is configured.
var ErrMissingServiceRoleKey = errors.New("service role key is not configured")

// AdminContext carries the administrative service-role credential.
// It is held by trusted server-side code only and never derived from a user request.
type AdminContext struct {
	key []byte
}

// NewAdminContext wraps the configured service-role key.
func NewAdminContext(serviceRoleKey string) (AdminContext, error) {
	if serviceRoleKey == "" {
		return AdminContext{}, ErrMissingServiceRoleKey
	}
	return AdminContext{key: []byte(serviceRoleKey)}, nil
}

// Authorizes reports whether the context holds the expected key, in constant time.
// A zero AdminContext never authorizes.
func (a AdminContext) Authorizes(expected []byte) bool {
	if len(a.key) == 0 || len(expected) == 0 {
		return false
	}
	return hmac.Equal(a.key, expected)
}

// IsZero reports whether the context carries no credential.
func (a AdminContext) IsZero() bool { return len(a.key) == 0 }
