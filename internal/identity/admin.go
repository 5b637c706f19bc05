package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/rubberband-os/rubberband/internal/auth"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store"
)

// ErrNotAuthorized is returned when an administrative call is made without the service-role key.
var ErrNotAuthorized = errors.New("administrative credential rejected")

// AdminService exposes the privileged identity primitives.
type AdminService struct {
	identities     store.IdentityStore
	serviceRoleKey []byte
}

// NewAdminService creates the administrative identity API. Calls are only
// accepted with an AdminContext carrying serviceRoleKey.
func NewAdminService(identities store.IdentityStore, serviceRoleKey string) *AdminService {
	return &AdminService{
		identities:     identities,
		serviceRoleKey: []byte(serviceRoleKey),
	}
}

func (a *AdminService) authorize(admin auth.AdminContext) error {
	if !admin.Authorizes(a.serviceRoleKey) {
		return ErrNotAuthorized
	}
	return nil
}

// ListIdentities returns up to pageSize identities.
func (a *AdminService) ListIdentities(ctx context.Context, admin auth.AdminContext, pageSize int) ([]*models.Identity, error) {
	if err := a.authorize(admin); err != nil {
		return nil, err
	}

	identities, err := a.identities.List(ctx, store.ListIdentitiesOptions{Limit: pageSize})
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}

	return identities, nil
}

// DeleteIdentity permanently removes an identity.
func (a *AdminService) DeleteIdentity(ctx context.Context, admin auth.AdminContext, identityID uuid.UUID) error {
	if err := a.authorize(admin); err != nil {
		return err
	}

	if err := a.identities.Delete(ctx, identityID); err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}

	log.Info().Str("identity_id", identityID.String()).Msg("Identity deleted by administrator")

	return nil
}
