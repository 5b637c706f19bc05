package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store"
)

const defaultListLimit = 50

// IdentityStore implements store.IdentityStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type IdentityStore struct {
	mu sync.RWMutex

	identities map[uuid.UUID]*models.Identity // identity_id -> Identity
	byEmail    map[string]uuid.UUID           // lower(email) -> identity_id
}

// NewIdentityStore creates a new in-memory identity store.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		identities: make(map[uuid.UUID]*models.Identity),
		byEmail:    make(map[string]uuid.UUID),
	}
}

// Create stores a new identity; email uniqueness is case-insensitive.
func (s *IdentityStore) Create(ctx context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(identity.Email)

	if _, exists := s.identities[identity.IdentityID]; exists {
		return store.ErrIdentityAlreadyExists
	}
	if _, exists := s.byEmail[email]; exists {
		return store.ErrIdentityAlreadyExists
	}

	clone := *identity
	clone.Email = email
	s.identities[identity.IdentityID] = &clone
	s.byEmail[email] = identity.IdentityID

	return nil
}

// Get retrieves an identity by ID.
func (s *IdentityStore) Get(ctx context.Context, identityID uuid.UUID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, exists := s.identities[identityID]
	if !exists {
		return nil, store.ErrIdentityNotFound
	}

	clone := *identity
	return &clone, nil
}

// GetByEmail retrieves an identity by email.
func (s *IdentityStore) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byEmail[strings.ToLower(email)]
	if !exists {
		return nil, store.ErrIdentityNotFound
	}

	clone := *s.identities[id]
	return &clone, nil
}

// UpdateLastLogin records the time of the latest successful sign in.
func (s *IdentityStore) UpdateLastLogin(ctx context.Context, identityID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, exists := s.identities[identityID]
	if !exists {
		return store.ErrIdentityNotFound
	}

	identity.LastLoginAt = &at
	identity.UpdatedAt = at

	return nil
}

// List returns identities ordered by creation time.
func (s *IdentityStore) List(ctx context.Context, opts store.ListIdentitiesOptions) ([]*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	all := make([]*models.Identity, 0, len(s.identities))
	for _, identity := range s.identities {
		clone := *identity
		all = append(all, &clone)
	}
	slices.SortFunc(all, func(a, b *models.Identity) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	if opts.Offset >= len(all) {
		return []*models.Identity{}, nil
	}
	all = all[opts.Offset:]
	if len(all) > limit {
		all = all[:limit]
	}

	return all, nil
}

// Delete permanently removes an identity.
func (s *IdentityStore) Delete(ctx context.Context, identityID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, exists := s.identities[identityID]
	if !exists {
		return store.ErrIdentityNotFound
	}

	delete(s.byEmail, identity.Email)
	delete(s.identities, identityID)

	return nil
}

// ProfileStore implements store.ProfileStore using in-memory storage.
type ProfileStore struct {
	mu sync.RWMutex

	profiles map[uuid.UUID]*models.Profile // identity_id -> Profile
}

// NewProfileStore creates a new in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles: make(map[uuid.UUID]*models.Profile),
	}
}

func (s *ProfileStore) Get(ctx context.Context, identityID uuid.UUID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, exists := s.profiles[identityID]
	if !exists {
		return nil, store.ErrProfileNotFound
	}

	clone := *profile
	return &clone, nil
}

func (s *ProfileStore) Create(ctx context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.IdentityID]; exists {
		return store.ErrProfileAlreadyExists
	}

	clone := *profile
	s.profiles[profile.IdentityID] = &clone

	return nil
}

func (s *ProfileStore) Update(ctx context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.IdentityID]; !exists {
		return store.ErrProfileNotFound
	}

	profile.UpdatedAt = time.Now()

	clone := *profile
	s.profiles[profile.IdentityID] = &clone

	return nil
}

func (s *ProfileStore) Delete(ctx context.Context, identityID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[identityID]; !exists {
		return store.ErrProfileNotFound
	}

	delete(s.profiles, identityID)

	return nil
}
