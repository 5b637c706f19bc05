package auth

import (
	"fmt"
	"slices"

	"connectrpc.com/connect"
	"github.com/rubberband-os/rubberband/internal/models"
)

// Permission represents an authorized action within an organization
type Permission string

const (
	PermOrganizationRead Permission = "organization:read"
	PermSettingsManage   Permission = "settings:manage"
	PermMembersList      Permission = "members:list"
	PermMembersInvite    Permission = "members:invite"
)

// RolePermissions maps role binding roles to allowed permissions
var RolePermissions = map[string][]Permission{
	models.RoleAdmin: {
		PermOrganizationRead,
		PermSettingsManage,
		PermMembersList,
		PermMembersInvite,
	},
	models.RoleManager: {
		PermOrganizationRead,
		PermMembersList,
		PermMembersInvite,
	},
	models.RoleViewer: {
		PermOrganizationRead,
	},
}

// HasPermission checks if a role has a specific permission
func HasPermission(role string, perm Permission) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	return slices.Contains(perms, perm)
}

// RequirePermission checks authorization and returns a connect error if not authorized
func RequirePermission(role string, perm Permission) error {
	if !HasPermission(role, perm) {
		return connect.NewError(
			connect.CodePermissionDenied,
			fmt.Errorf("permission denied: %s requires %s", role, perm),
		)
	}

	return nil
}
