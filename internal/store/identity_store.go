package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rubberband-os/rubberband/internal/models"
)

// Errors
var (
	ErrIdentityNotFound      = errors.New("identity not found")
	ErrIdentityAlreadyExists = errors.New("identity already exists")
)

// IdentityStore persists authentication principals.
type IdentityStore interface {
	// Create returns ErrIdentityAlreadyExists when the ID or the email is already taken.
	Create(ctx context.Context, identity *models.Identity) error

	// Get retrieves an identity by ID
	Get(ctx context.Context, identityID uuid.UUID) (*models.Identity, error)

	// GetByEmail retrieves an identity by its (case-insensitive) email
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)

	// UpdateLastLogin records a successful sign in
	UpdateLastLogin(ctx context.Context, identityID uuid.UUID, at time.Time) error

	// List returns identities ordered by creation time
	List(ctx context.Context, opts ListIdentitiesOptions) ([]*models.Identity, error)

	// Delete permanently removes an identity
	Delete(ctx context.Context, identityID uuid.UUID) error
}

// ListIdentitiesOptions specifies paging for listing identities
type ListIdentitiesOptions struct {
	Limit  int // Max results (0 = default of 50)
	Offset int
}

// Errors for profile operations
var (
	ErrProfileNotFound      = errors.New("profile not found")
	ErrProfileAlreadyExists = errors.New("profile already exists")
)

// ProfileStore persists the denormalized user record of each identity.
type ProfileStore interface {
	Get(ctx context.Context, identityID uuid.UUID) (*models.Profile, error)

	// Create returns ErrProfileAlreadyExists if a profile for the identity is present.
	Create(ctx context.Context, profile *models.Profile) error

	Update(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, identityID uuid.UUID) error
}
