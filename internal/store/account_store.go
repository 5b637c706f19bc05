package store

import (
	"context"

	"github.com/google/uuid"
)

// AccountDeletionReport describes what the cascading account cleanup removed.
type AccountDeletionReport struct {
	// Deleted is the procedure's own success flag. It is false when the
	// identity could not be authorized for cleanup (e.g. it no longer exists).
	Deleted bool

	// OrganizationsDeleted lists organizations removed because the identity was their last member.
	OrganizationsDeleted []uuid.UUID

	// MembershipsRemoved counts role bindings removed for the identity.
	MembershipsRemoved int
}

// AccountStore exposes the server-side cascading cleanup of an identity's data.
// The last-member decision is made inside the implementation, never by the caller.
type AccountStore interface {
	// DeleteUserAccount removes the identity's profile, role bindings, issued invitations and
	// sessions, and every organization (with its settings and invitations) left without members,
	// including memberless organizations the identity created.
	// The identity row itself is not touched.
	DeleteUserAccount(ctx context.Context, identityID uuid.UUID) (*AccountDeletionReport, error)
}
