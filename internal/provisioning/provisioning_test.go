package provisioning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rubberband-os/rubberband/internal/auth"
	"github.com/rubberband-os/rubberband/internal/identity"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/notify"
	"github.com/rubberband-os/rubberband/internal/store"
	"github.com/rubberband-os/rubberband/internal/store/memory"
	"github.com/rubberband-os/rubberband/internal/workflow"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	stores     *memory.Stores
	identities *identity.Service
	sessions   *auth.SessionManager
	notifier   *notify.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	stores := memory.NewStores()
	signer, err := auth.NewTokenSigner([]byte("test-session-secret-at-least-32-bytes"))
	require.NoError(t, err)
	sessions := auth.NewSessionManager(stores.Sessions, signer, time.Hour)

	return &testEnv{
		stores:     stores,
		identities: identity.NewService(stores.Identities, sessions),
		sessions:   sessions,
		notifier:   &notify.Recorder{},
	}
}

func (e *testEnv) provisionerStores() Stores {
	return Stores{
		Organizations: e.stores.Organizations,
		RoleBindings:  e.stores.RoleBindings,
		Profiles:      e.stores.Profiles,
		Settings:      e.stores.Settings,
	}
}

func validRequest(email string) Request {
	return Request{
		Email:        email,
		Password:     "correct horse battery",
		FullName:     "Alice Example",
		Organization: Organization{Name: "Acme"},
	}
}

// failingOrganizations rejects every create.
type failingOrganizations struct {
	store.OrganizationStore
}

func (failingOrganizations) Create(ctx context.Context, org *models.Organization) error {
	return errors.New("connection reset")
}

// failingRoleBindings rejects every create.
type failingRoleBindings struct {
	store.RoleBindingStore
}

func (failingRoleBindings) Create(ctx context.Context, binding *models.RoleBinding) error {
	return errors.New("permission denied for table role_bindings")
}

// countingSettings counts inserts.
type countingSettings struct {
	store.SettingsStore
	creates int
}

func (c *countingSettings) Create(ctx context.Context, settings *models.OrganizationSettings) error {
	c.creates++
	return c.SettingsStore.Create(ctx, settings)
}

// triggerSettings simulates a trigger inserting the row right after the existence check.
type triggerSettings struct {
	store.SettingsStore
}

func (s triggerSettings) Get(ctx context.Context, orgID uuid.UUID) (*models.OrganizationSettings, error) {
	settings, err := s.SettingsStore.Get(ctx, orgID)
	if errors.Is(err, store.ErrSettingsNotFound) {
		_ = s.SettingsStore.Create(ctx, &models.OrganizationSettings{OrgID: orgID})
	}
	return settings, err
}

// brokenProfiles fails every call.
type brokenProfiles struct {
	store.ProfileStore
}

func (brokenProfiles) Get(ctx context.Context, identityID uuid.UUID) (*models.Profile, error) {
	return nil, errors.New("timeout")
}

func TestProvision_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := New(env.identities, env.provisionerStores(), env.notifier)

	result, err := p.Provision(ctx, validRequest("alice@example.com"))
	require.NoError(t, err)
	require.True(t, result.Provisioned())
	require.Equal(t, StateDone, result.State)
	require.Empty(t, result.Warnings)
	require.Len(t, result.Steps, 5)

	identities, err := env.stores.Identities.List(ctx, store.ListIdentitiesOptions{})
	require.NoError(t, err)
	require.Len(t, identities, 1)

	org, err := env.stores.Organizations.Get(ctx, result.Organization.OrgID)
	require.NoError(t, err)
	require.Equal(t, "Acme", org.Name)
	require.Equal(t, result.Identity.IdentityID, org.CreatedBy)

	bindings, err := env.stores.RoleBindings.ListByOrg(ctx, org.OrgID)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	require.Equal(t, models.RoleAdmin, bindings[0].Role)

	profile, err := env.stores.Profiles.Get(ctx, result.Identity.IdentityID)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", profile.Email)
	require.Equal(t, "Alice Example", *profile.FullName)

	settings, err := env.stores.Settings.Get(ctx, org.OrgID)
	require.NoError(t, err)
	require.False(t, settings.HasCompletedOnboarding)

	messages := env.notifier.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, "alice@example.com", messages[0].To)
}

func TestProvision_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := New(env.identities, env.provisionerStores(), nil)

	_, err := p.Provision(ctx, validRequest("alice@example.com"))
	require.NoError(t, err)

	result, err := p.Provision(ctx, validRequest("Alice@Example.com"))
	require.Error(t, err)
	require.Equal(t, workflow.AccountCreationFailed, workflow.TypeOf(err))
	require.ErrorIs(t, err, store.ErrIdentityAlreadyExists)
	require.Equal(t, StateAbortedAtIdentity, result.State)
	require.Nil(t, result.Organization)

	// no second organization
	first, err := env.stores.Identities.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	bindings, err := env.stores.RoleBindings.ListByIdentity(ctx, first.IdentityID)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	members, err := env.stores.RoleBindings.ListByOrg(ctx, bindings[0].OrgID)
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestProvision_OrganizationFailureLeavesIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stores := env.provisionerStores()
	stores.Organizations = failingOrganizations{env.stores.Organizations}
	p := New(env.identities, stores, env.notifier)

	result, err := p.Provision(ctx, validRequest("alice@example.com"))
	require.Error(t, err)
	require.Equal(t, workflow.OrganizationCreationFailed, workflow.TypeOf(err))
	require.Equal(t, StateAbortedAtOrganization, result.State)
	require.False(t, result.Provisioned())

	// identity is retrievable
	got, err := env.stores.Identities.Get(ctx, result.Identity.IdentityID)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", got.Email)

	// the identity was intentionally left in place
	require.Len(t, result.Retained, 1)
	require.Equal(t, StepCreateIdentity, result.Retained[0].Step)

	// nothing else was written
	bindings, err := env.stores.RoleBindings.ListByIdentity(ctx, got.IdentityID)
	require.NoError(t, err)
	require.Empty(t, bindings)
	_, err = env.stores.Profiles.Get(ctx, got.IdentityID)
	require.ErrorIs(t, err, store.ErrProfileNotFound)
	require.Empty(t, env.notifier.Messages())

	needs, err := p.NeedsOrganization(ctx, got.IdentityID)
	require.NoError(t, err)
	require.True(t, needs)
}

func TestProvision_RoleFailureLeavesIdentityAndOrganization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stores := env.provisionerStores()
	stores.RoleBindings = failingRoleBindings{env.stores.RoleBindings}
	p := New(env.identities, stores, nil)

	result, err := p.Provision(ctx, validRequest("alice@example.com"))
	require.Error(t, err)
	require.Equal(t, workflow.RoleAssignmentFailed, workflow.TypeOf(err))
	require.Equal(t, StateAbortedAtRole, result.State)
	require.Len(t, result.Retained, 2)

	_, err = env.stores.Organizations.Get(ctx, result.Organization.OrgID)
	require.NoError(t, err)
	_, err = env.stores.Settings.Get(ctx, result.Organization.OrgID)
	require.ErrorIs(t, err, store.ErrSettingsNotFound)
}

func TestProvision_SettingsAlreadyExist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	counting := &countingSettings{SettingsStore: triggerSettings{env.stores.Settings}}
	stores := env.provisionerStores()
	stores.Settings = counting
	p := New(env.identities, stores, nil)

	result, err := p.Provision(ctx, validRequest("alice@example.com"))
	require.NoError(t, err)
	require.Empty(t, result.Warnings)

	// the insert raced the trigger and lost, which is not an error
	require.Equal(t, 1, counting.creates)

	// a second check finds the row and does not insert again
	r := &run{p: p, result: result}
	r.ensureSettings(ctx)
	require.Equal(t, 1, counting.creates)
	require.Equal(t, workflow.Skipped, r.result.Steps[len(r.result.Steps)-1].Outcome)
}

func TestProvision_ExistingSettingsAreNotReinserted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	counting := &countingSettings{SettingsStore: env.stores.Settings}
	stores := env.provisionerStores()
	stores.Settings = counting
	p := New(env.identities, stores, nil)

	result, err := p.Provision(ctx, validRequest("alice@example.com"))
	require.NoError(t, err)
	require.Equal(t, 1, counting.creates)

	r := &run{p: p, result: result}
	r.ensureSettings(ctx)
	require.Equal(t, 1, counting.creates)
	require.Empty(t, r.result.Warnings)
}

func TestProvision_NonFatalProfileFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stores := env.provisionerStores()
	stores.Profiles = brokenProfiles{env.stores.Profiles}
	p := New(env.identities, stores, nil)

	result, err := p.Provision(ctx, validRequest("alice@example.com"))
	require.NoError(t, err)
	require.Equal(t, StateDone, result.State)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, workflow.ProfileVerificationFailed, result.Warnings[0].Type)

	_, err = env.stores.Settings.Get(ctx, result.Organization.OrgID)
	require.NoError(t, err)
}

func TestProvision_WelcomeEmailFailureIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.Err = errors.New("smtp unavailable")
	p := New(env.identities, env.provisionerStores(), env.notifier)

	result, err := p.Provision(context.Background(), validRequest("alice@example.com"))
	require.NoError(t, err)
	require.True(t, result.Provisioned())
}

// slowNotifier blocks until the send context ends.
type slowNotifier struct{}

func (slowNotifier) Send(ctx context.Context, msg notify.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestProvision_SlowWelcomeEmailIsBounded(t *testing.T) {
	env := newTestEnv(t)
	p := New(env.identities, env.provisionerStores(), slowNotifier{})
	p.sendTimeout = 20 * time.Millisecond

	done := make(chan struct{})
	var (
		result *Result
		err    error
	)
	go func() {
		defer close(done)
		result, err = p.Provision(context.Background(), validRequest("alice@example.com"))
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("provisioning waited on the welcome email")
	}
	require.NoError(t, err)
	require.True(t, result.Provisioned())
}

func TestProvision_ProfileEmailMatchesIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := New(env.identities, env.provisionerStores(), env.notifier)

	result, err := p.Provision(ctx, validRequest("  Alice@Example.COM "))
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", result.Identity.Email)

	profile, err := env.stores.Profiles.Get(ctx, result.Identity.IdentityID)
	require.NoError(t, err)
	require.Equal(t, result.Identity.Email, profile.Email)

	messages := env.notifier.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, "alice@example.com", messages[0].To)
}

func TestProvision_WorkspaceHandleTaken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := New(env.identities, env.provisionerStores(), nil)

	first := validRequest("alice@example.com")
	first.Organization.WorkspaceHandle = "acme"
	_, err := p.Provision(ctx, first)
	require.NoError(t, err)

	second := validRequest("bob@example.com")
	second.Organization.WorkspaceHandle = "ACME"
	result, err := p.Provision(ctx, second)
	require.Equal(t, workflow.OrganizationCreationFailed, workflow.TypeOf(err))
	require.Equal(t, StateAbortedAtOrganization, result.State)
	require.ErrorIs(t, err, store.ErrOrganizationAlreadyExists)

	var werr *workflow.Error
	require.ErrorAs(t, err, &werr)
	require.Contains(t, werr.Message, "workspace handle is taken")

	// bob's identity is kept and resumes with another handle
	signIn, err := env.identities.SignIn(ctx, "bob@example.com", "correct horse battery", auth.SessionMetadata{})
	require.NoError(t, err)
	resumed, err := p.Resume(ctx, signIn.Session, Organization{Name: "Bobco", WorkspaceHandle: "bobco"})
	require.NoError(t, err)
	require.True(t, resumed.Provisioned())
}

func TestProvision_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Request)
	}{
		{name: "bad email", mod: func(r *Request) { r.Email = "nope" }},
		{name: "short password", mod: func(r *Request) { r.Password = "short" }},
		{name: "blank organization", mod: func(r *Request) { r.Organization.Name = "   " }},
		{name: "bad country", mod: func(r *Request) { r.Organization.Country = "Australia" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			p := New(env.identities, env.provisionerStores(), nil)

			req := validRequest("alice@example.com")
			tt.mod(&req)

			result, err := p.Provision(context.Background(), req)
			require.Equal(t, workflow.InvalidRequest, workflow.TypeOf(err))
			require.Equal(t, StateStart, result.State)

			identities, err := env.stores.Identities.List(context.Background(), store.ListIdentitiesOptions{})
			require.NoError(t, err)
			require.Empty(t, identities)
		})
	}
}

func TestResume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// first attempt stops at step 2
	stores := env.provisionerStores()
	stores.Organizations = failingOrganizations{env.stores.Organizations}
	_, err := New(env.identities, stores, nil).Provision(ctx, validRequest("alice@example.com"))
	require.Error(t, err)

	// a retried sign-up now fails at step 1
	p := New(env.identities, env.provisionerStores(), nil)
	_, err = p.Provision(ctx, validRequest("alice@example.com"))
	require.Equal(t, workflow.AccountCreationFailed, workflow.TypeOf(err))

	// sign in and resume instead
	signIn, err := env.identities.SignIn(ctx, "alice@example.com", "correct horse battery", auth.SessionMetadata{})
	require.NoError(t, err)

	result, err := p.Resume(ctx, signIn.Session, Organization{Name: "Acme"})
	require.NoError(t, err)
	require.Equal(t, StateDone, result.State)

	binding, err := env.stores.RoleBindings.Get(ctx, signIn.Identity.IdentityID, result.Organization.OrgID)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, binding.Role)

	_, err = env.stores.Profiles.Get(ctx, signIn.Identity.IdentityID)
	require.NoError(t, err)

	// once bound, resume is refused
	_, err = p.Resume(ctx, signIn.Session, Organization{Name: "Second"})
	require.Equal(t, workflow.AlreadyProvisioned, workflow.TypeOf(err))
}
