package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store"
)

// Stores bundles the in-memory stores that share one backing dataset.
type Stores struct {
	Identities    *IdentityStore
	Profiles      *ProfileStore
	Organizations *OrganizationStore
	Settings      *SettingsStore
	RoleBindings  *RoleBindingStore
	Sessions      *SessionStore
	Invitations   *InvitationStore
	Accounts      *AccountStore
}

// NewStores creates an empty, linked set of in-memory stores.
func NewStores() *Stores {
	s := &Stores{
		Identities:    NewIdentityStore(),
		Profiles:      NewProfileStore(),
		Organizations: NewOrganizationStore(),
		Settings:      NewSettingsStore(),
		RoleBindings:  NewRoleBindingStore(),
		Sessions:      NewSessionStore(),
		Invitations:   NewInvitationStore(),
	}
	s.Accounts = NewAccountStore(s)
	return s
}

// AccountStore implements store.AccountStore over a set of in-memory stores,
// mirroring the delete_user_account SQL procedure.
type AccountStore struct {
	mu     sync.Mutex // serializes cascades the way the procedure's transaction does
	stores *Stores
}

// NewAccountStore creates a cascade over the given stores.
func NewAccountStore(stores *Stores) *AccountStore {
	return &AccountStore{stores: stores}
}

// DeleteUserAccount removes all data owned by the identity, organizations it was the last member of,
// and organizations it created that never got a member.
//
// Every deletion is planned before any is applied, and the apply phase only meets not-found
// errors, which it ignores. Cascades are serialized with each other, not with other writers.
func (a *AccountStore) DeleteUserAccount(ctx context.Context, identityID uuid.UUID) (*store.AccountDeletionReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := &store.AccountDeletionReport{OrganizationsDeleted: []uuid.UUID{}}

	if _, err := a.stores.Identities.Get(ctx, identityID); err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			return report, nil
		}
		return nil, fmt.Errorf("failed to authorize account deletion: %w", err)
	}

	bindings, orphaned, err := a.plan(ctx, identityID)
	if err != nil {
		return nil, err
	}

	for _, binding := range bindings {
		if err := a.stores.RoleBindings.Delete(ctx, identityID, binding.OrgID); err != nil && !errors.Is(err, store.ErrRoleBindingNotFound) {
			return nil, fmt.Errorf("failed to remove membership: %w", err)
		}
		report.MembershipsRemoved++
	}

	for _, orgID := range orphaned {
		if err := a.deleteOrganization(ctx, orgID); err != nil {
			return nil, err
		}
		report.OrganizationsDeleted = append(report.OrganizationsDeleted, orgID)
	}

	a.stores.Invitations.deleteWhere(func(inv *models.Invitation) bool {
		return inv.InvitedBy == identityID
	})

	if err := a.stores.Profiles.Delete(ctx, identityID); err != nil && !errors.Is(err, store.ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to delete profile: %w", err)
	}

	if _, err := a.stores.Sessions.DeleteByIdentity(ctx, identityID); err != nil {
		return nil, fmt.Errorf("failed to delete sessions: %w", err)
	}

	report.Deleted = true
	return report, nil
}

// plan returns the identity's bindings and the organizations that are left without
// members once those bindings are gone, without changing anything.
func (a *AccountStore) plan(ctx context.Context, identityID uuid.UUID) ([]*models.RoleBinding, []uuid.UUID, error) {
	bindings, err := a.stores.RoleBindings.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	var orphaned []uuid.UUID
	seen := make(map[uuid.UUID]bool)

	othersRemain := func(orgID uuid.UUID) (bool, error) {
		members, err := a.stores.RoleBindings.ListByOrg(ctx, orgID)
		if err != nil {
			return false, fmt.Errorf("failed to count members: %w", err)
		}
		for _, m := range members {
			if m.IdentityID != identityID {
				return true, nil
			}
		}
		return false, nil
	}

	for _, binding := range bindings {
		seen[binding.OrgID] = true
		remain, err := othersRemain(binding.OrgID)
		if err != nil {
			return nil, nil, err
		}
		if !remain {
			orphaned = append(orphaned, binding.OrgID)
		}
	}

	// left behind by a signup that stopped before the role binding
	for _, org := range a.stores.Organizations.createdBy(identityID) {
		if seen[org.OrgID] {
			continue
		}
		remain, err := othersRemain(org.OrgID)
		if err != nil {
			return nil, nil, err
		}
		if !remain {
			orphaned = append(orphaned, org.OrgID)
		}
	}

	return bindings, orphaned, nil
}

func (a *AccountStore) deleteOrganization(ctx context.Context, orgID uuid.UUID) error {
	if err := a.stores.Settings.Delete(ctx, orgID); err != nil && !errors.Is(err, store.ErrSettingsNotFound) {
		return fmt.Errorf("failed to delete organization settings: %w", err)
	}

	a.stores.Invitations.deleteWhere(func(inv *models.Invitation) bool {
		return inv.OrgID == orgID
	})

	if err := a.stores.Organizations.Delete(ctx, orgID); err != nil && !errors.Is(err, store.ErrOrganizationNotFound) {
		return fmt.Errorf("failed to delete organization: %w", err)
	}

	return nil
}
