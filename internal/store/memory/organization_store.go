package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type OrganizationStore struct {
	mu sync.RWMutex

	organizations map[uuid.UUID]*models.Organization // org_id -> Organization
	byHandle      map[string]uuid.UUID               // workspace_handle -> org_id
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		organizations: make(map[uuid.UUID]*models.Organization),
		byHandle:      make(map[string]uuid.UUID),
	}
}

// Create creates a new organization in memory.
// Workspace handles are unique, as in the postgres schema.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[org.OrgID]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	if s.handleTaken(org) {
		return store.ErrOrganizationAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *org
	s.organizations[org.OrgID] = &clone
	s.index(nil, &clone)

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

// Update updates an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.organizations[org.OrgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}
	if s.handleTaken(org) {
		return store.ErrOrganizationAlreadyExists
	}

	org.UpdatedAt = time.Now()

	clone := *org
	s.organizations[org.OrgID] = &clone
	s.index(existing, &clone)

	return nil
}

// Delete deletes an organization by ID.
// Settings, bindings and invitations are not cascaded here, see AccountStore.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.organizations[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	delete(s.organizations, orgID)
	s.index(existing, nil)

	return nil
}

// handleTaken reports whether another organization holds org's workspace handle.
func (s *OrganizationStore) handleTaken(org *models.Organization) bool {
	if org.WorkspaceHandle == nil {
		return false
	}
	owner, taken := s.byHandle[*org.WorkspaceHandle]
	return taken && owner != org.OrgID
}

// index moves the handle entry from old to updated; either may be nil.
func (s *OrganizationStore) index(old, updated *models.Organization) {
	if old != nil && old.WorkspaceHandle != nil {
		delete(s.byHandle, *old.WorkspaceHandle)
	}
	if updated != nil && updated.WorkspaceHandle != nil {
		s.byHandle[*updated.WorkspaceHandle] = updated.OrgID
	}
}

// createdBy returns the organizations created by identityID, oldest first.
func (s *OrganizationStore) createdBy(identityID uuid.UUID) []*models.Organization {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Organization
	for _, org := range s.organizations {
		if org.CreatedBy == identityID {
			clone := *org
			result = append(result, &clone)
		}
	}
	slices.SortFunc(result, func(a, b *models.Organization) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.OrgID[:], b.OrgID[:])
	})
	return result
}

// SettingsStore implements store.SettingsStore using in-memory storage.
type SettingsStore struct {
	mu sync.RWMutex

	settings map[uuid.UUID]*models.OrganizationSettings // org_id -> settings
}

// NewSettingsStore creates a new in-memory organization settings store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{
		settings: make(map[uuid.UUID]*models.OrganizationSettings),
	}
}

func (s *SettingsStore) Get(ctx context.Context, orgID uuid.UUID) (*models.OrganizationSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, exists := s.settings[orgID]
	if !exists {
		return nil, store.ErrSettingsNotFound
	}

	clone := *settings
	return &clone, nil
}

func (s *SettingsStore) Create(ctx context.Context, settings *models.OrganizationSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.settings[settings.OrgID]; exists {
		return store.ErrSettingsAlreadyExists
	}

	clone := *settings
	s.settings[settings.OrgID] = &clone

	return nil
}

func (s *SettingsStore) Update(ctx context.Context, settings *models.OrganizationSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.settings[settings.OrgID]; !exists {
		return store.ErrSettingsNotFound
	}

	settings.UpdatedAt = time.Now()

	clone := *settings
	s.settings[settings.OrgID] = &clone

	return nil
}

func (s *SettingsStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.settings[orgID]; !exists {
		return store.ErrSettingsNotFound
	}

	delete(s.settings, orgID)

	return nil
}
