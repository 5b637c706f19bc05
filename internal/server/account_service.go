package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/rubberband-os/rubberband/internal/api"
	"github.com/rubberband-os/rubberband/internal/auth"
	"github.com/rubberband-os/rubberband/internal/deprovisioning"
	httpmiddleware "github.com/rubberband-os/rubberband/internal/http"
	"github.com/rubberband-os/rubberband/internal/identity"
	"github.com/rubberband-os/rubberband/internal/invitations"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/provisioning"
	"github.com/rubberband-os/rubberband/internal/store"
	"github.com/rubberband-os/rubberband/internal/telemetry"
	"github.com/rubberband-os/rubberband/internal/workflow"
)

// Stores are the tables the account service reads directly.
type Stores struct {
	Organizations store.OrganizationStore
	Settings      store.SettingsStore
	RoleBindings  store.RoleBindingStore
	Profiles      store.ProfileStore
}

// AccountService implements the account service procedures.
type AccountService struct {
	identities    *identity.Service
	sessions      *auth.SessionManager
	provisioner   *provisioning.Provisioner
	deprovisioner *deprovisioning.Deprovisioner
	invitations   *invitations.Service
	stores        Stores
	metrics       *telemetry.Metrics
}

func sessionFrom(ctx context.Context) (auth.UserSession, error) {
	session, ok := auth.UserSessionFromContext(ctx)
	if !ok {
		return auth.UserSession{}, connect.NewError(connect.CodeUnauthenticated, errors.New("not signed in"))
	}
	return session, nil
}

func parseOrgID(s string) (uuid.UUID, error) {
	orgID, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid org_id: %w", err))
	}
	return orgID, nil
}

func organizationFromAPI(details api.OrganizationDetails) provisioning.Organization {
	return provisioning.Organization{
		Name:            details.Name,
		Country:         details.Country,
		LogoURL:         details.LogoURL,
		WorkspaceHandle: details.WorkspaceHandle,
		ReferralSource:  details.ReferralSource,
	}
}

func warningsToAPI(warnings []*workflow.Error) []api.StepWarning {
	var out []api.StepWarning
	for _, w := range warnings {
		out = append(out, api.StepWarning{Step: w.Step, ErrorType: string(w.Type), Message: w.Message})
	}
	return out
}

func (s *AccountService) Signup(ctx context.Context, req *connect.Request[api.SignupRequest]) (*connect.Response[api.SignupResponse], error) {
	result, err := s.provisioner.Provision(ctx, provisioning.Request{
		Email:        req.Msg.Email,
		Password:     req.Msg.Password,
		FullName:     req.Msg.FullName,
		Organization: organizationFromAPI(req.Msg.Organization),
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.SignupResponse{
		IdentityID: result.Identity.IdentityID.String(),
		OrgID:      result.Organization.OrgID.String(),
		State:      string(result.State),
		Warnings:   warningsToAPI(result.Warnings),
	}), nil
}

func (s *AccountService) Login(ctx context.Context, req *connect.Request[api.LoginRequest]) (*connect.Response[api.LoginResponse], error) {
	meta := httpmiddleware.SessionMetadataFromContext(ctx)
	if meta.UserAgent == "" {
		meta.UserAgent = req.Header().Get("User-Agent")
	}

	result, err := s.identities.SignIn(ctx, req.Msg.Email, req.Msg.Password, meta)
	if err != nil {
		s.metrics.SignInFailuresTotal.Add(ctx, 1)
		return nil, toConnectError(err)
	}
	s.metrics.SessionsStartedTotal.Add(ctx, 1)

	// an identity without an organization is a signup that stopped early, not an error
	needsOrg, err := s.provisioner.NeedsOrganization(ctx, result.Identity.IdentityID)
	if err != nil {
		log.Warn().Err(err).Str("identity_id", result.Identity.IdentityID.String()).Msg("Failed to check memberships at login")
	}
	if needsOrg {
		log.Info().Str("identity_id", result.Identity.IdentityID.String()).Msg("Identity has no organization, signup must be resumed")
	}

	return connect.NewResponse(&api.LoginResponse{
		AccessToken:       result.Token,
		IdentityID:        result.Identity.IdentityID.String(),
		Email:             result.Identity.Email,
		NeedsOrganization: needsOrg,
	}), nil
}

func (s *AccountService) Logout(ctx context.Context, req *connect.Request[api.LogoutRequest]) (*connect.Response[api.LogoutResponse], error) {
	session, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.End(ctx, session); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.LogoutResponse{}), nil
}

func (s *AccountService) GetAccount(ctx context.Context, req *connect.Request[api.GetAccountRequest]) (*connect.Response[api.GetAccountResponse], error) {
	session, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}

	ident, err := s.identities.Get(ctx, session)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &api.GetAccountResponse{
		IdentityID:  ident.IdentityID.String(),
		Email:       ident.Email,
		CreatedAt:   ident.CreatedAt,
		Memberships: []api.Membership{},
	}

	profile, err := s.stores.Profiles.Get(ctx, ident.IdentityID)
	switch {
	case err == nil:
		if profile.FullName != nil {
			resp.FullName = *profile.FullName
		}
	case !errors.Is(err, store.ErrProfileNotFound):
		return nil, toConnectError(err)
	}

	bindings, err := s.stores.RoleBindings.ListByIdentity(ctx, ident.IdentityID)
	if err != nil {
		return nil, toConnectError(err)
	}

	for _, binding := range bindings {
		membership, err := s.membership(ctx, binding)
		if err != nil {
			return nil, toConnectError(err)
		}
		resp.Memberships = append(resp.Memberships, membership)
	}

	return connect.NewResponse(resp), nil
}

func (s *AccountService) membership(ctx context.Context, binding *models.RoleBinding) (api.Membership, error) {
	org, err := s.stores.Organizations.Get(ctx, binding.OrgID)
	if err != nil {
		return api.Membership{}, err
	}

	members, err := s.stores.RoleBindings.ListByOrg(ctx, binding.OrgID)
	if err != nil {
		return api.Membership{}, err
	}

	membership := api.Membership{
		OrgID:       org.OrgID.String(),
		OrgName:     org.Name,
		Role:        binding.Role,
		MemberCount: len(members),
	}

	settings, err := s.stores.Settings.Get(ctx, binding.OrgID)
	switch {
	case err == nil:
		membership.Settings = settingsToAPI(settings)
	case !errors.Is(err, store.ErrSettingsNotFound):
		return api.Membership{}, err
	}

	return membership, nil
}

func settingsToAPI(settings *models.OrganizationSettings) *api.Settings {
	out := &api.Settings{HasCompletedOnboarding: settings.HasCompletedOnboarding}
	if settings.UseCase != nil {
		out.UseCase = *settings.UseCase
	}
	return out
}

func (s *AccountService) CreateOrganization(ctx context.Context, req *connect.Request[api.CreateOrganizationRequest]) (*connect.Response[api.CreateOrganizationResponse], error) {
	session, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.provisioner.Resume(ctx, session, organizationFromAPI(req.Msg.Organization))
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.CreateOrganizationResponse{
		OrgID:    result.Organization.OrgID.String(),
		State:    string(result.State),
		Warnings: warningsToAPI(result.Warnings),
	}), nil
}

func (s *AccountService) CompleteOnboarding(ctx context.Context, req *connect.Request[api.CompleteOnboardingRequest]) (*connect.Response[api.CompleteOnboardingResponse], error) {
	session, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	orgID, err := parseOrgID(req.Msg.OrgID)
	if err != nil {
		return nil, err
	}

	binding, err := s.stores.RoleBindings.Get(ctx, session.IdentityID(), orgID)
	if err != nil {
		if errors.Is(err, store.ErrRoleBindingNotFound) {
			return nil, connect.NewError(connect.CodePermissionDenied, errors.New("not a member of this organization"))
		}
		return nil, toConnectError(err)
	}
	if err := auth.RequirePermission(binding.Role, auth.PermSettingsManage); err != nil {
		return nil, err
	}

	now := time.Now()
	settings, err := s.stores.Settings.Get(ctx, orgID)
	if errors.Is(err, store.ErrSettingsNotFound) {
		// settings init is non-fatal at signup, so the row may still be missing
		settings = &models.OrganizationSettings{OrgID: orgID, CreatedAt: now}
		err = s.stores.Settings.Create(ctx, settings)
		if errors.Is(err, store.ErrSettingsAlreadyExists) {
			settings, err = s.stores.Settings.Get(ctx, orgID)
		}
	}
	if err != nil {
		return nil, toConnectError(err)
	}

	settings.HasCompletedOnboarding = true
	if req.Msg.UseCase != "" {
		useCase := req.Msg.UseCase
		settings.UseCase = &useCase
	}
	settings.UpdatedAt = now

	if err := s.stores.Settings.Update(ctx, settings); err != nil {
		return nil, toConnectError(err)
	}

	log.Info().
		Str("identity_id", session.IdentityID().String()).
		Str("org_id", orgID.String()).
		Msg("Onboarding completed")

	return connect.NewResponse(&api.CompleteOnboardingResponse{Settings: *settingsToAPI(settings)}), nil
}

func invitationToAPI(inv *models.Invitation, withToken bool) api.Invitation {
	out := api.Invitation{
		InvitationID: inv.InvitationID.String(),
		OrgID:        inv.OrgID.String(),
		Email:        inv.Email,
		Role:         inv.Role,
		ExpiresAt:    inv.ExpiresAt,
	}
	if withToken {
		out.Token = inv.Token
	}
	return out
}

func (s *AccountService) InviteMember(ctx context.Context, req *connect.Request[api.InviteMemberRequest]) (*connect.Response[api.InviteMemberResponse], error) {
	session, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	orgID, err := parseOrgID(req.Msg.OrgID)
	if err != nil {
		return nil, err
	}

	invitation, err := s.invitations.Invite(ctx, session, orgID, req.Msg.Email, req.Msg.Role)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.InviteMemberResponse{Invitation: invitationToAPI(invitation, true)}), nil
}

func (s *AccountService) ListInvitations(ctx context.Context, req *connect.Request[api.ListInvitationsRequest]) (*connect.Response[api.ListInvitationsResponse], error) {
	session, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}
	orgID, err := parseOrgID(req.Msg.OrgID)
	if err != nil {
		return nil, err
	}

	pending, err := s.invitations.Pending(ctx, session, orgID)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &api.ListInvitationsResponse{Invitations: make([]api.Invitation, 0, len(pending))}
	for _, inv := range pending {
		resp.Invitations = append(resp.Invitations, invitationToAPI(inv, false))
	}
	return connect.NewResponse(resp), nil
}

func (s *AccountService) AcceptInvitation(ctx context.Context, req *connect.Request[api.AcceptInvitationRequest]) (*connect.Response[api.AcceptInvitationResponse], error) {
	session, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}

	binding, err := s.invitations.Accept(ctx, session, req.Msg.Token)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.AcceptInvitationResponse{
		OrgID: binding.OrgID.String(),
		Role:  binding.Role,
	}), nil
}

func (s *AccountService) DeleteAccount(ctx context.Context, req *connect.Request[api.DeleteAccountRequest]) (*connect.Response[api.DeleteAccountResponse], error) {
	session, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.deprovisioner.Deprovision(ctx, session)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.DeleteAccountResponse{
		Success:              true,
		Message:              "Your account has been deleted",
		OrganizationsDeleted: uuidStrings(result.OrganizationsDeleted),
	}), nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
