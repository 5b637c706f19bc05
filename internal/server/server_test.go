package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rubberband-os/rubberband/internal/api"
	"github.com/rubberband-os/rubberband/internal/auth"
	"github.com/rubberband-os/rubberband/internal/deprovisioning"
	"github.com/rubberband-os/rubberband/internal/identity"
	"github.com/rubberband-os/rubberband/internal/invitations"
	"github.com/rubberband-os/rubberband/internal/notify"
	"github.com/rubberband-os/rubberband/internal/provisioning"
	"github.com/rubberband-os/rubberband/internal/store"
	"github.com/rubberband-os/rubberband/internal/store/memory"
	"github.com/rubberband-os/rubberband/internal/workflow"
	"github.com/stretchr/testify/require"
)

const testServiceRoleKey = "service-role-key"

type testServer struct {
	url        string
	client     *api.AccountClient
	stores     *memory.Stores
	identities *identity.Service
	notifier   *notify.Recorder
}

// failingDeletion wraps the account deletion collaborators with injectable failures.
type failingDeletion struct {
	deprovisioning.AdminIdentities
	store.AccountStore

	cleanupErr error
	deleteErr  error
}

func (f *failingDeletion) DeleteUserAccount(ctx context.Context, identityID uuid.UUID) (*store.AccountDeletionReport, error) {
	if f.cleanupErr != nil {
		return nil, f.cleanupErr
	}
	return f.AccountStore.DeleteUserAccount(ctx, identityID)
}

func (f *failingDeletion) DeleteIdentity(ctx context.Context, admin auth.AdminContext, identityID uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.AdminIdentities.DeleteIdentity(ctx, admin, identityID)
}

// newTestServer starts a server whose deprovisioner holds adminKey.
func newTestServer(t *testing.T, adminKey string) *testServer {
	t.Helper()
	return newTestServerWithDeletion(t, adminKey, nil)
}

// newTestServerWithDeletion routes account deletion through deletion when it is not nil.
func newTestServerWithDeletion(t *testing.T, adminKey string, deletion *failingDeletion) *testServer {
	t.Helper()

	stores := memory.NewStores()
	signer, err := auth.NewTokenSigner([]byte("test-session-secret-at-least-32-bytes"))
	require.NoError(t, err)
	sessions := auth.NewSessionManager(stores.Sessions, signer, time.Hour)
	identities := identity.NewService(stores.Identities, sessions)
	notifier := &notify.Recorder{}

	adminCtx, _ := auth.NewAdminContext(adminKey)

	var admin deprovisioning.AdminIdentities = identity.NewAdminService(stores.Identities, testServiceRoleKey)
	var accounts store.AccountStore = stores.Accounts
	if deletion != nil {
		deletion.AdminIdentities = admin
		deletion.AccountStore = accounts
		admin, accounts = deletion, deletion
	}

	srv := NewServer(Config{
		Identities: identities,
		Sessions:   sessions,
		Provisioner: provisioning.New(identities, provisioning.Stores{
			Organizations: stores.Organizations,
			RoleBindings:  stores.RoleBindings,
			Profiles:      stores.Profiles,
			Settings:      stores.Settings,
		}, notifier),
		Deprovisioner: deprovisioning.New(admin, accounts, adminCtx, sessions),
		Invitations: invitations.NewService(invitations.Stores{
			Organizations: stores.Organizations,
			RoleBindings:  stores.RoleBindings,
			Invitations:   stores.Invitations,
		}, notifier, 0),
		Stores: Stores{
			Organizations: stores.Organizations,
			Settings:      stores.Settings,
			RoleBindings:  stores.RoleBindings,
			Profiles:      stores.Profiles,
		},
	})

	ts := httptest.NewServer(srv.Handler(zerolog.Nop()))
	t.Cleanup(ts.Close)

	return &testServer{
		url:        ts.URL,
		client:     api.NewAccountClient(http.DefaultClient, ts.URL),
		stores:     stores,
		identities: identities,
		notifier:   notifier,
	}
}

func withToken[T any](msg *T, token string) *connect.Request[T] {
	req := connect.NewRequest(msg)
	req.Header().Set("Authorization", "Bearer "+token)
	return req
}

func (s *testServer) signupAndLogin(t *testing.T, email, orgName string) (*api.SignupResponse, *api.LoginResponse) {
	t.Helper()
	ctx := context.Background()

	signup, err := s.client.Signup(ctx, connect.NewRequest(&api.SignupRequest{
		Email:        email,
		Password:     "correct horse battery",
		Organization: api.OrganizationDetails{Name: orgName},
	}))
	require.NoError(t, err)

	login, err := s.client.Login(ctx, connect.NewRequest(&api.LoginRequest{
		Email:    email,
		Password: "correct horse battery",
	}))
	require.NoError(t, err)
	require.False(t, login.Msg.NeedsOrganization)

	return signup.Msg, login.Msg
}

func (s *testServer) callDeleteFunction(t *testing.T, token string) (int, api.FunctionResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.url+api.DeleteUserAccountPath, bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body api.FunctionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testServiceRoleKey)

	resp, err := http.Get(s.url + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAccountLifecycle(t *testing.T) {
	s := newTestServer(t, testServiceRoleKey)
	ctx := context.Background()

	signup, alice := s.signupAndLogin(t, "alice@example.com", "Acme")
	require.Equal(t, string(provisioning.StateDone), signup.State)
	require.Empty(t, signup.Warnings)
	require.Len(t, s.notifier.Messages(), 1)

	// 1. Account overview
	account, err := s.client.GetAccount(ctx, withToken(&api.GetAccountRequest{}, alice.AccessToken))
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", account.Msg.Email)
	require.Len(t, account.Msg.Memberships, 1)
	acme := account.Msg.Memberships[0]
	require.Equal(t, "Acme", acme.OrgName)
	require.Equal(t, "admin", acme.Role)
	require.True(t, acme.LastMember())
	require.NotNil(t, acme.Settings)
	require.False(t, acme.Settings.HasCompletedOnboarding)

	// 2. Onboarding
	onboarding, err := s.client.CompleteOnboarding(ctx, withToken(&api.CompleteOnboardingRequest{
		OrgID: acme.OrgID, UseCase: "ci",
	}, alice.AccessToken))
	require.NoError(t, err)
	require.True(t, onboarding.Msg.Settings.HasCompletedOnboarding)
	require.Equal(t, "ci", onboarding.Msg.Settings.UseCase)

	// 3. Invite bob, who has his own organization
	invite, err := s.client.InviteMember(ctx, withToken(&api.InviteMemberRequest{
		OrgID: acme.OrgID, Email: "bob@example.com", Role: "viewer",
	}, alice.AccessToken))
	require.NoError(t, err)
	require.NotEmpty(t, invite.Msg.Invitation.Token)

	pending, err := s.client.ListInvitations(ctx, withToken(&api.ListInvitationsRequest{OrgID: acme.OrgID}, alice.AccessToken))
	require.NoError(t, err)
	require.Len(t, pending.Msg.Invitations, 1)
	require.Empty(t, pending.Msg.Invitations[0].Token)

	_, bob := s.signupAndLogin(t, "bob@example.com", "Bobco")
	accepted, err := s.client.AcceptInvitation(ctx, withToken(&api.AcceptInvitationRequest{
		Token: invite.Msg.Invitation.Token,
	}, bob.AccessToken))
	require.NoError(t, err)
	require.Equal(t, acme.OrgID, accepted.Msg.OrgID)

	// viewers cannot finish onboarding
	_, err = s.client.CompleteOnboarding(ctx, withToken(&api.CompleteOnboardingRequest{OrgID: acme.OrgID}, bob.AccessToken))
	require.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	// 4. Alice deletes her account through the function route, Acme survives with bob
	status, body := s.callDeleteFunction(t, alice.AccessToken)
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.Success)
	require.Empty(t, body.OrganizationsDeleted)

	_, err = s.client.GetAccount(ctx, withToken(&api.GetAccountRequest{}, alice.AccessToken))
	require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	// 5. Bob is now the last member of both organizations
	account, err = s.client.GetAccount(ctx, withToken(&api.GetAccountRequest{}, bob.AccessToken))
	require.NoError(t, err)
	require.Len(t, account.Msg.Memberships, 2)
	for _, m := range account.Msg.Memberships {
		require.True(t, m.LastMember(), m.OrgName)
	}

	deleted, err := s.client.DeleteAccount(ctx, withToken(&api.DeleteAccountRequest{}, bob.AccessToken))
	require.NoError(t, err)
	require.True(t, deleted.Msg.Success)
	require.Len(t, deleted.Msg.OrganizationsDeleted, 2)
	require.Contains(t, deleted.Msg.OrganizationsDeleted, acme.OrgID)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	s := newTestServer(t, testServiceRoleKey)
	s.signupAndLogin(t, "alice@example.com", "Acme")

	_, err := s.client.Signup(context.Background(), connect.NewRequest(&api.SignupRequest{
		Email:        "alice@example.com",
		Password:     "another password",
		Organization: api.OrganizationDetails{Name: "Acme 2"},
	}))
	require.Equal(t, connect.CodeAlreadyExists, connect.CodeOf(err))

	var cerr *connect.Error
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, string(workflow.AccountCreationFailed), cerr.Meta().Get(ErrorTypeHeader))
}

func TestSignup_InvalidRequest(t *testing.T) {
	s := newTestServer(t, testServiceRoleKey)

	_, err := s.client.Signup(context.Background(), connect.NewRequest(&api.SignupRequest{
		Email:    "alice@example.com",
		Password: "correct horse battery",
	}))
	require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestLogin_ResumesSignupWithoutOrganization(t *testing.T) {
	s := newTestServer(t, testServiceRoleKey)
	ctx := context.Background()

	// an identity left behind by a signup that failed at organization creation
	_, err := s.identities.SignUp(ctx, "orphan@example.com", "correct horse battery")
	require.NoError(t, err)

	login, err := s.client.Login(ctx, connect.NewRequest(&api.LoginRequest{
		Email: "orphan@example.com", Password: "correct horse battery",
	}))
	require.NoError(t, err)
	require.True(t, login.Msg.NeedsOrganization)

	created, err := s.client.CreateOrganization(ctx, withToken(&api.CreateOrganizationRequest{
		Organization: api.OrganizationDetails{Name: "Recovered"},
	}, login.Msg.AccessToken))
	require.NoError(t, err)
	require.Equal(t, string(provisioning.StateDone), created.Msg.State)

	_, err = s.client.CreateOrganization(ctx, withToken(&api.CreateOrganizationRequest{
		Organization: api.OrganizationDetails{Name: "Second"},
	}, login.Msg.AccessToken))
	require.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}

func TestLogin_WrongPassword(t *testing.T) {
	s := newTestServer(t, testServiceRoleKey)
	s.signupAndLogin(t, "alice@example.com", "Acme")

	_, err := s.client.Login(context.Background(), connect.NewRequest(&api.LoginRequest{
		Email: "alice@example.com", Password: "wrong password",
	}))
	require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestLogout(t *testing.T) {
	s := newTestServer(t, testServiceRoleKey)
	ctx := context.Background()
	_, alice := s.signupAndLogin(t, "alice@example.com", "Acme")

	_, err := s.client.Logout(ctx, withToken(&api.LogoutRequest{}, alice.AccessToken))
	require.NoError(t, err)

	_, err = s.client.GetAccount(ctx, withToken(&api.GetAccountRequest{}, alice.AccessToken))
	require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestProtectedProceduresRequireSession(t *testing.T) {
	s := newTestServer(t, testServiceRoleKey)

	_, err := s.client.GetAccount(context.Background(), connect.NewRequest(&api.GetAccountRequest{}))
	require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = s.client.DeleteAccount(context.Background(), withToken(&api.DeleteAccountRequest{}, "garbage"))
	require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestDeleteFunction_Errors(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		s := newTestServer(t, testServiceRoleKey)

		status, body := s.callDeleteFunction(t, "")
		require.Equal(t, http.StatusUnauthorized, status)
		require.False(t, body.Success)
		require.Equal(t, string(workflow.Unauthorized), body.ErrorType)
	})

	t.Run("misconfigured service role key", func(t *testing.T) {
		s := newTestServer(t, "anon-key")
		ctx := context.Background()
		signup, alice := s.signupAndLogin(t, "alice@example.com", "Acme")

		status, body := s.callDeleteFunction(t, alice.AccessToken)
		require.Equal(t, http.StatusServiceUnavailable, status)
		require.False(t, body.Success)
		require.Equal(t, string(workflow.ServiceMisconfigured), body.ErrorType)
		require.NotEmpty(t, body.Message)
		require.NotEmpty(t, body.Error)

		// nothing was deleted
		account, err := s.client.GetAccount(ctx, withToken(&api.GetAccountRequest{}, alice.AccessToken))
		require.NoError(t, err)
		require.Equal(t, signup.OrgID, account.Msg.Memberships[0].OrgID)
	})

	t.Run("data cleanup failure keeps the account", func(t *testing.T) {
		deletion := &failingDeletion{cleanupErr: errors.New("statement timeout")}
		s := newTestServerWithDeletion(t, testServiceRoleKey, deletion)
		ctx := context.Background()
		signup, alice := s.signupAndLogin(t, "alice@example.com", "Acme")

		status, body := s.callDeleteFunction(t, alice.AccessToken)
		require.Equal(t, http.StatusInternalServerError, status)
		require.False(t, body.Success)
		require.Equal(t, string(workflow.DataCleanupFailed), body.ErrorType)
		require.NotEmpty(t, body.Message)
		require.Contains(t, body.Error, "failed")
		require.NotContains(t, body.Error, "statement timeout")

		// identity and organization are untouched, the session still works
		account, err := s.client.GetAccount(ctx, withToken(&api.GetAccountRequest{}, alice.AccessToken))
		require.NoError(t, err)
		require.Equal(t, signup.OrgID, account.Msg.Memberships[0].OrgID)
	})

	t.Run("identity deletion failure after cleanup", func(t *testing.T) {
		deletion := &failingDeletion{deleteErr: errors.New("admin api unavailable")}
		s := newTestServerWithDeletion(t, testServiceRoleKey, deletion)
		ctx := context.Background()
		_, alice := s.signupAndLogin(t, "alice@example.com", "Acme")

		status, body := s.callDeleteFunction(t, alice.AccessToken)
		require.Equal(t, http.StatusInternalServerError, status)
		require.False(t, body.Success)
		require.Equal(t, string(workflow.IdentityDeletionFailed), body.ErrorType)
		require.NotEmpty(t, body.Message)
		require.NotEmpty(t, body.Error)
		require.NotContains(t, body.Error, "admin api unavailable")

		// application data is gone but the identity row remains for an operator
		ident, err := s.stores.Identities.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		_, err = s.stores.Profiles.Get(ctx, ident.IdentityID)
		require.ErrorIs(t, err, store.ErrProfileNotFound)
	})

	t.Run("method not allowed", func(t *testing.T) {
		s := newTestServer(t, testServiceRoleKey)
		_, alice := s.signupAndLogin(t, "alice@example.com", "Acme")

		req, err := http.NewRequest(http.MethodGet, s.url+api.DeleteUserAccountPath, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+alice.AccessToken)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}
