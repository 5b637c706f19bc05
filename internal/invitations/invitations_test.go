package invitations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rubberband-os/rubberband/internal/auth"
	"github.com/rubberband-os/rubberband/internal/identity"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/notify"
	"github.com/rubberband-os/rubberband/internal/store"
	"github.com/rubberband-os/rubberband/internal/store/memory"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	stores     *memory.Stores
	identities *identity.Service
	notifier   *notify.Recorder
	service    *Service
	orgID      uuid.UUID
	admin      auth.UserSession
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	stores := memory.NewStores()
	signer, err := auth.NewTokenSigner([]byte("test-session-secret-at-least-32-bytes"))
	require.NoError(t, err)
	identities := identity.NewService(stores.Identities, auth.NewSessionManager(stores.Sessions, signer, time.Hour))
	notifier := &notify.Recorder{}

	env := &testEnv{
		stores:     stores,
		identities: identities,
		notifier:   notifier,
		service: NewService(Stores{
			Organizations: stores.Organizations,
			RoleBindings:  stores.RoleBindings,
			Invitations:   stores.Invitations,
		}, notifier, 0),
	}

	env.admin = env.signIn(t, "admin@example.com")
	env.orgID = uuid.Must(uuid.NewV7())
	require.NoError(t, stores.Organizations.Create(ctx, &models.Organization{
		OrgID: env.orgID, Name: "Acme", CreatedBy: env.admin.IdentityID(), CreatedAt: time.Now(),
	}))
	env.bind(t, env.admin, models.RoleAdmin)

	return env
}

func (e *testEnv) signIn(t *testing.T, email string) auth.UserSession {
	t.Helper()
	ctx := context.Background()
	_, err := e.identities.SignUp(ctx, email, "correct horse battery")
	require.NoError(t, err)
	result, err := e.identities.SignIn(ctx, email, "correct horse battery", auth.SessionMetadata{})
	require.NoError(t, err)
	return result.Session
}

func (e *testEnv) bind(t *testing.T, session auth.UserSession, role string) {
	t.Helper()
	require.NoError(t, e.stores.RoleBindings.Create(context.Background(), &models.RoleBinding{
		IdentityID: session.IdentityID(), OrgID: e.orgID, Role: role, CreatedAt: time.Now(),
	}))
}

func TestInvite_AndAccept(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	invitation, err := env.service.Invite(ctx, env.admin, env.orgID, "Bob@Example.com", models.RoleManager)
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", invitation.Email)
	require.WithinDuration(t, time.Now().Add(DefaultTTL), invitation.ExpiresAt, time.Minute)

	raw, err := base58.Decode(invitation.Token)
	require.NoError(t, err)
	require.Len(t, raw, tokenBytes)

	messages := env.notifier.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, "bob@example.com", messages[0].To)
	require.Contains(t, messages[0].Text, invitation.Token)

	bob := env.signIn(t, "bob@example.com")
	binding, err := env.service.Accept(ctx, bob, invitation.Token)
	require.NoError(t, err)
	require.Equal(t, models.RoleManager, binding.Role)
	require.Equal(t, env.orgID, binding.OrgID)

	stored, err := env.stores.Invitations.GetByToken(ctx, invitation.Token)
	require.NoError(t, err)
	require.True(t, stored.IsAccepted())

	// single use
	_, err = env.service.Accept(ctx, bob, invitation.Token)
	require.ErrorIs(t, err, store.ErrInvitationAlreadyAccepted)
}

func TestInvite_Permissions(t *testing.T) {
	tests := []struct {
		name    string
		role    string
		wantErr error
	}{
		{name: "manager can invite", role: models.RoleManager},
		{name: "viewer cannot invite", role: models.RoleViewer, wantErr: ErrPermissionDenied},
		{name: "non member cannot invite", wantErr: ErrPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			caller := env.signIn(t, "caller@example.com")
			if tt.role != "" {
				env.bind(t, caller, tt.role)
			}

			_, err := env.service.Invite(context.Background(), caller, env.orgID, "new@example.com", models.RoleViewer)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Empty(t, env.notifier.Messages())
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestInvite_RejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Invite(ctx, env.admin, env.orgID, "not-an-email", models.RoleViewer)
	require.ErrorIs(t, err, identity.ErrInvalidEmail)

	_, err = env.service.Invite(ctx, env.admin, env.orgID, "bob@example.com", "owner")
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestInvite_EmailFailureDoesNotFail(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.Err = errors.New("smtp: connection refused")

	invitation, err := env.service.Invite(context.Background(), env.admin, env.orgID, "bob@example.com", models.RoleViewer)
	require.NoError(t, err)
	require.NotEmpty(t, invitation.Token)
}

// slowNotifier blocks until the send context ends.
type slowNotifier struct{}

func (slowNotifier) Send(ctx context.Context, msg notify.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestInvite_SlowEmailIsBounded(t *testing.T) {
	env := newTestEnv(t)
	env.service.notifier = slowNotifier{}
	env.service.sendTimeout = 20 * time.Millisecond

	start := time.Now()
	invitation, err := env.service.Invite(context.Background(), env.admin, env.orgID, "bob@example.com", models.RoleViewer)
	require.NoError(t, err)
	require.NotEmpty(t, invitation.Token)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestAccept_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := env.signIn(t, "bob@example.com")

	expired := &models.Invitation{
		InvitationID: uuid.Must(uuid.NewV7()),
		OrgID:        env.orgID,
		Email:        "bob@example.com",
		Role:         models.RoleViewer,
		Token:        "expired-token",
		InvitedBy:    env.admin.IdentityID(),
		CreatedAt:    time.Now().Add(-8 * 24 * time.Hour),
		ExpiresAt:    time.Now().Add(-24 * time.Hour),
	}
	require.NoError(t, env.stores.Invitations.Create(ctx, expired))

	_, err := env.service.Accept(ctx, bob, "expired-token")
	require.ErrorIs(t, err, ErrExpired)

	_, err = env.service.Accept(ctx, bob, "unknown-token")
	require.ErrorIs(t, err, store.ErrInvitationNotFound)

	forCarol, err := env.service.Invite(ctx, env.admin, env.orgID, "carol@example.com", models.RoleViewer)
	require.NoError(t, err)
	_, err = env.service.Accept(ctx, bob, forCarol.Token)
	require.ErrorIs(t, err, ErrEmailMismatch)

	bindings, err := env.stores.RoleBindings.ListByIdentity(ctx, bob.IdentityID())
	require.NoError(t, err)
	require.Empty(t, bindings)
}

func TestAccept_ExistingMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := env.signIn(t, "bob@example.com")
	env.bind(t, bob, models.RoleViewer)

	invitation, err := env.service.Invite(ctx, env.admin, env.orgID, "bob@example.com", models.RoleManager)
	require.NoError(t, err)

	_, err = env.service.Accept(ctx, bob, invitation.Token)
	require.ErrorIs(t, err, store.ErrRoleBindingAlreadyExists)

	binding, err := env.stores.RoleBindings.Get(ctx, bob.IdentityID(), env.orgID)
	require.NoError(t, err)
	require.Equal(t, models.RoleViewer, binding.Role)
}

func TestPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Invite(ctx, env.admin, env.orgID, "bob@example.com", models.RoleViewer)
	require.NoError(t, err)
	accepted, err := env.service.Invite(ctx, env.admin, env.orgID, "carol@example.com", models.RoleViewer)
	require.NoError(t, err)

	carol := env.signIn(t, "carol@example.com")
	_, err = env.service.Accept(ctx, carol, accepted.Token)
	require.NoError(t, err)

	pending, err := env.service.Pending(ctx, env.admin, env.orgID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "bob@example.com", pending[0].Email)

	// carol joined as a viewer and cannot see invitations
	_, err = env.service.Pending(ctx, carol, env.orgID)
	require.ErrorIs(t, err, ErrPermissionDenied)
}
