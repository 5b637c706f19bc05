// Package invitations lets organization admins and managers invite new members.
package invitations

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/rubberband-os/rubberband/internal/auth"
	"github.com/rubberband-os/rubberband/internal/identity"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/notify"
	"github.com/rubberband-os/rubberband/internal/store"
	"github.com/rubberband-os/rubberband/internal/telemetry"
)

// DefaultTTL is how long an invitation can be accepted.
const DefaultTTL = 7 * 24 * time.Hour

const tokenBytes = 24

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidRole      = errors.New("invalid role")
	ErrExpired          = errors.New("invitation has expired")
	ErrEmailMismatch    = errors.New("invitation was issued to a different email address")
)

// Stores are the tables the invitation flow reads and writes.
type Stores struct {
	Organizations store.OrganizationStore
	RoleBindings  store.RoleBindingStore
	Invitations   store.InvitationStore
}

// Service issues and accepts invitations.
type Service struct {
	stores      Stores
	notifier    notify.Notifier
	ttl         time.Duration
	sendTimeout time.Duration
	metrics     *telemetry.Metrics
}

// NewService creates an invitation service. A nil notifier skips the invitation email.
func NewService(stores Stores, notifier notify.Notifier, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		stores:      stores,
		notifier:    notifier,
		ttl:         ttl,
		sendTimeout: notify.SendTimeout,
		metrics:     telemetry.GetMetrics(),
	}
}

// Invite creates an invitation to orgID for email. The caller needs members:invite in the organization.
func (s *Service) Invite(ctx context.Context, session auth.UserSession, orgID uuid.UUID, email, role string) (*models.Invitation, error) {
	email, err := identity.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if !models.ValidRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	binding, err := s.stores.RoleBindings.Get(ctx, session.IdentityID(), orgID)
	if err != nil {
		if errors.Is(err, store.ErrRoleBindingNotFound) {
			return nil, fmt.Errorf("%w: not a member of the organization", ErrPermissionDenied)
		}
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if !auth.HasPermission(binding.Role, auth.PermMembersInvite) {
		return nil, fmt.Errorf("%w: %s cannot invite members", ErrPermissionDenied, binding.Role)
	}

	org, err := s.stores.Organizations.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	invitationID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation id: %w", err)
	}

	now := time.Now()
	invitation := &models.Invitation{
		InvitationID: invitationID,
		OrgID:        orgID,
		Email:        email,
		Role:         role,
		Token:        token,
		InvitedBy:    session.IdentityID(),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}

	if err := s.stores.Invitations.Create(ctx, invitation); err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	log.Info().
		Str("invitation_id", invitationID.String()).
		Str("org_id", orgID.String()).
		Str("role", role).
		Msg("Invitation created")

	if s.notifier != nil {
		sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		defer cancel()
		if err := s.notifier.Send(sendCtx, notify.InvitationMessage(email, org.Name, role, token)); err != nil {
			s.metrics.NotificationErrorsTotal.Add(ctx, 1)
			log.Warn().Err(err).
				Str("invitation_id", invitationID.String()).
				Msg("Failed to send invitation email")
		}
	}

	return invitation, nil
}

// Accept binds the caller to the inviting organization with the invited role.
func (s *Service) Accept(ctx context.Context, session auth.UserSession, token string) (*models.RoleBinding, error) {
	invitation, err := s.stores.Invitations.GetByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}

	switch {
	case invitation.IsAccepted():
		return nil, store.ErrInvitationAlreadyAccepted
	case invitation.IsExpired():
		return nil, ErrExpired
	case !strings.EqualFold(invitation.Email, session.Email()):
		return nil, ErrEmailMismatch
	}

	now := time.Now()
	binding := &models.RoleBinding{
		IdentityID: session.IdentityID(),
		OrgID:      invitation.OrgID,
		Role:       invitation.Role,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.stores.RoleBindings.Create(ctx, binding); err != nil {
		return nil, err
	}

	if err := s.stores.Invitations.MarkAccepted(ctx, invitation.InvitationID, now); err != nil {
		// the membership stands, the token just stays reusable until it expires
		log.Warn().Err(err).
			Str("invitation_id", invitation.InvitationID.String()).
			Msg("Failed to mark invitation accepted")
	}

	log.Info().
		Str("identity_id", session.IdentityID().String()).
		Str("org_id", invitation.OrgID.String()).
		Str("role", invitation.Role).
		Msg("Invitation accepted")

	return binding, nil
}

// Pending returns the unaccepted, unexpired invitations of an organization.
// The caller needs members:list in the organization.
func (s *Service) Pending(ctx context.Context, session auth.UserSession, orgID uuid.UUID) ([]*models.Invitation, error) {
	binding, err := s.stores.RoleBindings.Get(ctx, session.IdentityID(), orgID)
	if err != nil {
		if errors.Is(err, store.ErrRoleBindingNotFound) {
			return nil, fmt.Errorf("%w: not a member of the organization", ErrPermissionDenied)
		}
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if !auth.HasPermission(binding.Role, auth.PermMembersList) {
		return nil, fmt.Errorf("%w: %s cannot list members", ErrPermissionDenied, binding.Role)
	}

	all, err := s.stores.Invitations.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}

	pending := make([]*models.Invitation, 0, len(all))
	for _, inv := range all {
		if !inv.IsAccepted() && !inv.IsExpired() {
			pending = append(pending, inv)
		}
	}
	return pending, nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return base58.Encode(b), nil
}
