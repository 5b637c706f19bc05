package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rubberband-os/rubberband/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
)

// OrganizationStore defines the interface for organization storage operations.
// Organizations represent tenants in the system; membership is expressed through role bindings.
type OrganizationStore interface {
	// Create creates a new organization in the store.
	// Returns ErrOrganizationAlreadyExists if an organization with the same ID already exists.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// Update updates an existing organization.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Update(ctx context.Context, org *models.Organization) error

	// Delete deletes an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Delete(ctx context.Context, orgID uuid.UUID) error
}

// Sentinel errors for organization settings
var (
	ErrSettingsNotFound      = errors.New("organization settings not found")
	ErrSettingsAlreadyExists = errors.New("organization settings already exist")
)

// SettingsStore holds the single settings row of each organization.
type SettingsStore interface {
	// Get returns ErrSettingsNotFound when the organization has no settings row yet.
	Get(ctx context.Context, orgID uuid.UUID) (*models.OrganizationSettings, error)

	// Create returns ErrSettingsAlreadyExists if a row for the organization is present,
	// including one inserted concurrently by another writer.
	Create(ctx context.Context, settings *models.OrganizationSettings) error

	Update(ctx context.Context, settings *models.OrganizationSettings) error
	Delete(ctx context.Context, orgID uuid.UUID) error
}
