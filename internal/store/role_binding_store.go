package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rubberband-os/rubberband/internal/models"
)

// Sentinel errors for role binding store operations
var (
	ErrRoleBindingNotFound      = errors.New("role binding not found")
	ErrRoleBindingAlreadyExists = errors.New("role binding already exists")
)

// RoleBindingStore manages the membership of identities in organizations.
type RoleBindingStore interface {
	// Create returns ErrRoleBindingAlreadyExists if the (identity, organization) pair is already bound.
	Create(ctx context.Context, binding *models.RoleBinding) error

	// Get returns ErrRoleBindingNotFound if the identity is not a member of the organization.
	Get(ctx context.Context, identityID, orgID uuid.UUID) (*models.RoleBinding, error)

	// ListByIdentity returns every organization membership of an identity, oldest first.
	ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]*models.RoleBinding, error)

	// ListByOrg returns every member binding of an organization, oldest first.
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.RoleBinding, error)

	Delete(ctx context.Context, identityID, orgID uuid.UUID) error
}
