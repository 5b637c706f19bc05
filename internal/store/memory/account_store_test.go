package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store"
	"github.com/stretchr/testify/require"
)

// seedMember creates an identity with a profile bound to orgID, creating the organization if needed.
func seedMember(t *testing.T, stores *Stores, email string, orgID uuid.UUID, role string) *models.Identity {
	t.Helper()
	ctx := context.Background()

	identity := newIdentity(email)
	require.NoError(t, stores.Identities.Create(ctx, identity))
	require.NoError(t, stores.Profiles.Create(ctx, &models.Profile{IdentityID: identity.IdentityID, Email: email}))

	if _, err := stores.Organizations.Get(ctx, orgID); err != nil {
		require.NoError(t, stores.Organizations.Create(ctx, &models.Organization{OrgID: orgID, Name: "Acme", CreatedBy: identity.IdentityID}))
		require.NoError(t, stores.Settings.Create(ctx, &models.OrganizationSettings{OrgID: orgID}))
	}

	require.NoError(t, stores.RoleBindings.Create(ctx, &models.RoleBinding{
		IdentityID: identity.IdentityID,
		OrgID:      orgID,
		Role:       role,
		CreatedAt:  time.Now(),
	}))

	return identity
}

func TestAccountStore_DeleteUserAccount(t *testing.T) {
	t.Run("sole member removes the organization", func(t *testing.T) {
		stores := NewStores()
		ctx := context.Background()
		orgID := uuid.Must(uuid.NewV7())

		alice := seedMember(t, stores, "alice@example.com", orgID, models.RoleAdmin)
		require.NoError(t, stores.Invitations.Create(ctx, &models.Invitation{
			InvitationID: uuid.Must(uuid.NewV7()), OrgID: orgID, Token: "tok", InvitedBy: alice.IdentityID,
		}))
		require.NoError(t, stores.Sessions.Create(ctx, newSession(alice.IdentityID, time.Hour)))

		report, err := stores.Accounts.DeleteUserAccount(ctx, alice.IdentityID)
		require.NoError(t, err)
		require.True(t, report.Deleted)
		require.Equal(t, []uuid.UUID{orgID}, report.OrganizationsDeleted)
		require.Equal(t, 1, report.MembershipsRemoved)

		_, err = stores.Organizations.Get(ctx, orgID)
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
		_, err = stores.Settings.Get(ctx, orgID)
		require.ErrorIs(t, err, store.ErrSettingsNotFound)
		_, err = stores.Profiles.Get(ctx, alice.IdentityID)
		require.ErrorIs(t, err, store.ErrProfileNotFound)
		_, err = stores.Invitations.GetByToken(ctx, "tok")
		require.ErrorIs(t, err, store.ErrInvitationNotFound)

		// identity itself is left for the administrative delete
		_, err = stores.Identities.Get(ctx, alice.IdentityID)
		require.NoError(t, err)
	})

	t.Run("organization with remaining members survives", func(t *testing.T) {
		stores := NewStores()
		ctx := context.Background()
		orgID := uuid.Must(uuid.NewV7())

		alice := seedMember(t, stores, "alice@example.com", orgID, models.RoleAdmin)
		bob := seedMember(t, stores, "bob@example.com", orgID, models.RoleViewer)

		report, err := stores.Accounts.DeleteUserAccount(ctx, alice.IdentityID)
		require.NoError(t, err)
		require.True(t, report.Deleted)
		require.Empty(t, report.OrganizationsDeleted)

		_, err = stores.Organizations.Get(ctx, orgID)
		require.NoError(t, err)

		members, err := stores.RoleBindings.ListByOrg(ctx, orgID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		require.Equal(t, bob.IdentityID, members[0].IdentityID)
	})

	t.Run("memberless organization created by the identity is removed", func(t *testing.T) {
		stores := NewStores()
		ctx := context.Background()
		orgID := uuid.Must(uuid.NewV7())

		alice := seedMember(t, stores, "alice@example.com", orgID, models.RoleAdmin)

		// a signup that stopped before the role binding left this one behind
		abandoned := newOrganization("Abandoned", "abandoned")
		abandoned.CreatedBy = alice.IdentityID
		require.NoError(t, stores.Organizations.Create(ctx, abandoned))
		require.NoError(t, stores.Settings.Create(ctx, &models.OrganizationSettings{OrgID: abandoned.OrgID}))

		// created by alice but bob is a member, so it stays
		shared := newOrganization("Shared", "")
		shared.CreatedBy = alice.IdentityID
		require.NoError(t, stores.Organizations.Create(ctx, shared))
		seedMember(t, stores, "bob@example.com", shared.OrgID, models.RoleAdmin)

		report, err := stores.Accounts.DeleteUserAccount(ctx, alice.IdentityID)
		require.NoError(t, err)
		require.Equal(t, []uuid.UUID{orgID, abandoned.OrgID}, report.OrganizationsDeleted)

		_, err = stores.Organizations.Get(ctx, abandoned.OrgID)
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
		_, err = stores.Settings.Get(ctx, abandoned.OrgID)
		require.ErrorIs(t, err, store.ErrSettingsNotFound)
		_, err = stores.Organizations.Get(ctx, shared.OrgID)
		require.NoError(t, err)

		// the handle can be used again
		require.NoError(t, stores.Organizations.Create(ctx, newOrganization("Again", "abandoned")))
	})

	t.Run("unknown identity reports nothing deleted", func(t *testing.T) {
		stores := NewStores()

		report, err := stores.Accounts.DeleteUserAccount(context.Background(), uuid.Must(uuid.NewV7()))
		require.NoError(t, err)
		require.False(t, report.Deleted)
	})
}
