package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rubberband-os/rubberband/internal/models"
)

// Sentinel errors for invitation store operations
var (
	ErrInvitationNotFound        = errors.New("invitation not found")
	ErrInvitationAlreadyAccepted = errors.New("invitation already accepted")
)

// InvitationStore persists pending and accepted organization invitations.
type InvitationStore interface {
	Create(ctx context.Context, invitation *models.Invitation) error

	// GetByToken returns ErrInvitationNotFound for unknown tokens.
	GetByToken(ctx context.Context, token string) (*models.Invitation, error)

	// MarkAccepted sets accepted_at once; a second call returns ErrInvitationAlreadyAccepted.
	MarkAccepted(ctx context.Context, invitationID uuid.UUID, at time.Time) error

	// ListByOrg returns invitations of an organization, newest first.
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error)
}
