package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Roles a binding may grant within an organization.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleViewer  = "viewer"
)

// RoleBinding associates an identity with an organization and a role.
// There is at most one binding per (identity, organization) pair.
type RoleBinding struct {
	IdentityID uuid.UUID
	OrgID      uuid.UUID
	Role       string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return slices.Contains([]string{RoleAdmin, RoleManager, RoleViewer}, role)
}
