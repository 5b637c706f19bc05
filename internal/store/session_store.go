package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rubberband-os/rubberband/internal/models"
)

// Sentinel errors for session store operations
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// SessionStore defines the interface for server-side session storage.
type SessionStore interface {
	// Create creates a new session.
	Create(ctx context.Context, session *models.Session) error

	// Get retrieves a session by ID.
	// Returns ErrSessionNotFound if missing, ErrSessionExpired if past its expiry.
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)

	// UpdateLastUsed updates the last_used_at timestamp for a session.
	UpdateLastUsed(ctx context.Context, sessionID uuid.UUID) error

	// Delete deletes a session by ID (logout).
	Delete(ctx context.Context, sessionID uuid.UUID) error

	// DeleteByIdentity deletes all sessions for an identity (logout everywhere).
	DeleteByIdentity(ctx context.Context, identityID uuid.UUID) (int, error)

	// DeleteExpired deletes all expired sessions (cleanup job).
	DeleteExpired(ctx context.Context) (int, error)
}
