package api

import (
	"context"

	"connectrpc.com/connect"
)

// AccountClient calls the account service.
type AccountClient struct {
	signup             *connect.Client[SignupRequest, SignupResponse]
	login              *connect.Client[LoginRequest, LoginResponse]
	logout             *connect.Client[LogoutRequest, LogoutResponse]
	getAccount         *connect.Client[GetAccountRequest, GetAccountResponse]
	createOrganization *connect.Client[CreateOrganizationRequest, CreateOrganizationResponse]
	completeOnboarding *connect.Client[CompleteOnboardingRequest, CompleteOnboardingResponse]
	inviteMember       *connect.Client[InviteMemberRequest, InviteMemberResponse]
	listInvitations    *connect.Client[ListInvitationsRequest, ListInvitationsResponse]
	acceptInvitation   *connect.Client[AcceptInvitationRequest, AcceptInvitationResponse]
	deleteAccount      *connect.Client[DeleteAccountRequest, DeleteAccountResponse]
}

// NewAccountClient creates a client for the account service at baseURL.
// opts are applied after the codec and compression defaults.
func NewAccountClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AccountClient {
	opts = append(ClientOptions(), opts...)

	return &AccountClient{
		signup:             connect.NewClient[SignupRequest, SignupResponse](httpClient, baseURL+ProcedureSignup, opts...),
		login:              connect.NewClient[LoginRequest, LoginResponse](httpClient, baseURL+ProcedureLogin, opts...),
		logout:             connect.NewClient[LogoutRequest, LogoutResponse](httpClient, baseURL+ProcedureLogout, opts...),
		getAccount:         connect.NewClient[GetAccountRequest, GetAccountResponse](httpClient, baseURL+ProcedureGetAccount, opts...),
		createOrganization: connect.NewClient[CreateOrganizationRequest, CreateOrganizationResponse](httpClient, baseURL+ProcedureCreateOrganization, opts...),
		completeOnboarding: connect.NewClient[CompleteOnboardingRequest, CompleteOnboardingResponse](httpClient, baseURL+ProcedureCompleteOnboarding, opts...),
		inviteMember:       connect.NewClient[InviteMemberRequest, InviteMemberResponse](httpClient, baseURL+ProcedureInviteMember, opts...),
		listInvitations:    connect.NewClient[ListInvitationsRequest, ListInvitationsResponse](httpClient, baseURL+ProcedureListInvitations, opts...),
		acceptInvitation:   connect.NewClient[AcceptInvitationRequest, AcceptInvitationResponse](httpClient, baseURL+ProcedureAcceptInvitation, opts...),
		deleteAccount:      connect.NewClient[DeleteAccountRequest, DeleteAccountResponse](httpClient, baseURL+ProcedureDeleteAccount, opts...),
	}
}

func (c *AccountClient) Signup(ctx context.Context, req *connect.Request[SignupRequest]) (*connect.Response[SignupResponse], error) {
	return c.signup.CallUnary(ctx, req)
}

func (c *AccountClient) Login(ctx context.Context, req *connect.Request[LoginRequest]) (*connect.Response[LoginResponse], error) {
	return c.login.CallUnary(ctx, req)
}

func (c *AccountClient) Logout(ctx context.Context, req *connect.Request[LogoutRequest]) (*connect.Response[LogoutResponse], error) {
	return c.logout.CallUnary(ctx, req)
}

func (c *AccountClient) GetAccount(ctx context.Context, req *connect.Request[GetAccountRequest]) (*connect.Response[GetAccountResponse], error) {
	return c.getAccount.CallUnary(ctx, req)
}

func (c *AccountClient) CreateOrganization(ctx context.Context, req *connect.Request[CreateOrganizationRequest]) (*connect.Response[CreateOrganizationResponse], error) {
	return c.createOrganization.CallUnary(ctx, req)
}

func (c *AccountClient) CompleteOnboarding(ctx context.Context, req *connect.Request[CompleteOnboardingRequest]) (*connect.Response[CompleteOnboardingResponse], error) {
	return c.completeOnboarding.CallUnary(ctx, req)
}

func (c *AccountClient) InviteMember(ctx context.Context, req *connect.Request[InviteMemberRequest]) (*connect.Response[InviteMemberResponse], error) {
	return c.inviteMember.CallUnary(ctx, req)
}

func (c *AccountClient) ListInvitations(ctx context.Context, req *connect.Request[ListInvitationsRequest]) (*connect.Response[ListInvitationsResponse], error) {
	return c.listInvitations.CallUnary(ctx, req)
}

func (c *AccountClient) AcceptInvitation(ctx context.Context, req *connect.Request[AcceptInvitationRequest]) (*connect.Response[AcceptInvitationResponse], error) {
	return c.acceptInvitation.CallUnary(ctx, req)
}

func (c *AccountClient) DeleteAccount(ctx context.Context, req *connect.Request[DeleteAccountRequest]) (*connect.Response[DeleteAccountResponse], error) {
	return c.deleteAccount.CallUnary(ctx, req)
}
