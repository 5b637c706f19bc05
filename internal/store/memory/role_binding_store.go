package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store"
)

type bindingKey struct {
	identityID uuid.UUID
	orgID      uuid.UUID
}

// RoleBindingStore implements store.RoleBindingStore using in-memory storage.
type RoleBindingStore struct {
	mu sync.RWMutex

	bindings map[bindingKey]*models.RoleBinding
}

// NewRoleBindingStore creates a new in-memory role binding store.
func NewRoleBindingStore() *RoleBindingStore {
	return &RoleBindingStore{
		bindings: make(map[bindingKey]*models.RoleBinding),
	}
}

// Create adds a binding, at most one per (identity, organization).
func (s *RoleBindingStore) Create(ctx context.Context, binding *models.RoleBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bindingKey{binding.IdentityID, binding.OrgID}
	if _, exists := s.bindings[key]; exists {
		return store.ErrRoleBindingAlreadyExists
	}

	clone := *binding
	s.bindings[key] = &clone

	return nil
}

// Get retrieves the binding of an identity in an organization.
func (s *RoleBindingStore) Get(ctx context.Context, identityID, orgID uuid.UUID) (*models.RoleBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	binding, exists := s.bindings[bindingKey{identityID, orgID}]
	if !exists {
		return nil, store.ErrRoleBindingNotFound
	}

	clone := *binding
	return &clone, nil
}

// ListByIdentity returns the bindings of an identity, oldest first.
func (s *RoleBindingStore) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]*models.RoleBinding, error) {
	return s.list(func(b *models.RoleBinding) bool { return b.IdentityID == identityID }), nil
}

// ListByOrg returns the bindings of an organization, oldest first.
func (s *RoleBindingStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.RoleBinding, error) {
	return s.list(func(b *models.RoleBinding) bool { return b.OrgID == orgID }), nil
}

// Delete removes a single binding.
func (s *RoleBindingStore) Delete(ctx context.Context, identityID, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bindingKey{identityID, orgID}
	if _, exists := s.bindings[key]; !exists {
		return store.ErrRoleBindingNotFound
	}

	delete(s.bindings, key)

	return nil
}

func (s *RoleBindingStore) list(match func(*models.RoleBinding) bool) []*models.RoleBinding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*models.RoleBinding{}
	for _, binding := range s.bindings {
		if match(binding) {
			clone := *binding
			result = append(result, &clone)
		}
	}
	slices.SortFunc(result, func(a, b *models.RoleBinding) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return result
}
