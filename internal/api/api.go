// Package api defines the account service: its procedures, request and response
// messages, and the codec and compression options shared by clients and handlers.
package api

import "time"

// AccountServiceName is the fully-qualified name of the account service.
const AccountServiceName = "rubberband.account.v1.AccountService"

// Procedure paths of the account service.
const (
	ProcedureSignup             = "/" + AccountServiceName + "/Signup"
	ProcedureLogin              = "/" + AccountServiceName + "/Login"
	ProcedureLogout             = "/" + AccountServiceName + "/Logout"
	ProcedureGetAccount         = "/" + AccountServiceName + "/GetAccount"
	ProcedureCreateOrganization = "/" + AccountServiceName + "/CreateOrganization"
	ProcedureCompleteOnboarding = "/" + AccountServiceName + "/CompleteOnboarding"
	ProcedureInviteMember       = "/" + AccountServiceName + "/InviteMember"
	ProcedureListInvitations    = "/" + AccountServiceName + "/ListInvitations"
	ProcedureAcceptInvitation   = "/" + AccountServiceName + "/AcceptInvitation"
	ProcedureDeleteAccount      = "/" + AccountServiceName + "/DeleteAccount"
)

// PublicProcedures can be called without a session.
var PublicProcedures = []string{ProcedureSignup, ProcedureLogin}

// DeleteUserAccountPath is the plain HTTP function route for account deletion.
const DeleteUserAccountPath = "/functions/v1/delete-user-account"

// OrganizationDetails describes an organization to create.
type OrganizationDetails struct {
	Name            string `json:"name" yaml:"name"`
	Country         string `json:"country,omitempty" yaml:"country"`
	LogoURL         string `json:"logo_url,omitempty" yaml:"logo_url"`
	WorkspaceHandle string `json:"workspace_handle,omitempty" yaml:"workspace_handle"`
	ReferralSource  string `json:"referral_source,omitempty" yaml:"referral_source"`
}

// StepWarning is a non-fatal step failure of a successful workflow.
type StepWarning struct {
	Step      string `json:"step"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

type SignupRequest struct {
	Email        string              `json:"email"`
	Password     string              `json:"password"`
	FullName     string              `json:"full_name,omitempty"`
	Organization OrganizationDetails `json:"organization"`
}

type SignupResponse struct {
	IdentityID string        `json:"identity_id"`
	OrgID      string        `json:"org_id"`
	State      string        `json:"state"`
	Warnings   []StepWarning `json:"warnings,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	IdentityID  string `json:"identity_id"`
	Email       string `json:"email"`

	// NeedsOrganization is set when an earlier signup stopped before the
	// organization was set up. CreateOrganization finishes it.
	NeedsOrganization bool `json:"needs_organization"`
}

type LogoutRequest struct{}

type LogoutResponse struct{}

type GetAccountRequest struct{}

type Settings struct {
	HasCompletedOnboarding bool   `json:"has_completed_onboarding"`
	UseCase                string `json:"use_case,omitempty"`
}

type Membership struct {
	OrgID       string    `json:"org_id"`
	OrgName     string    `json:"org_name"`
	Role        string    `json:"role"`
	MemberCount int       `json:"member_count"`
	Settings    *Settings `json:"settings,omitempty"`
}

// LastMember reports whether deleting the account also deletes this organization.
func (m Membership) LastMember() bool {
	return m.MemberCount <= 1
}

type GetAccountResponse struct {
	IdentityID  string       `json:"identity_id"`
	Email       string       `json:"email"`
	FullName    string       `json:"full_name,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	Memberships []Membership `json:"memberships"`
}

type CreateOrganizationRequest struct {
	Organization OrganizationDetails `json:"organization"`
}

type CreateOrganizationResponse struct {
	OrgID    string        `json:"org_id"`
	State    string        `json:"state"`
	Warnings []StepWarning `json:"warnings,omitempty"`
}

type CompleteOnboardingRequest struct {
	OrgID   string `json:"org_id"`
	UseCase string `json:"use_case,omitempty"`
}

type CompleteOnboardingResponse struct {
	Settings Settings `json:"settings"`
}

type InviteMemberRequest struct {
	OrgID string `json:"org_id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Invitation struct {
	InvitationID string    `json:"invitation_id"`
	OrgID        string    `json:"org_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Token        string    `json:"token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type InviteMemberResponse struct {
	Invitation Invitation `json:"invitation"`
}

type ListInvitationsRequest struct {
	OrgID string `json:"org_id"`
}

type ListInvitationsResponse struct {
	Invitations []Invitation `json:"invitations"`
}

type AcceptInvitationRequest struct {
	Token string `json:"token"`
}

type AcceptInvitationResponse struct {
	OrgID string `json:"org_id"`
	Role  string `json:"role"`
}

type DeleteAccountRequest struct{}

type DeleteAccountResponse struct {
	Success              bool     `json:"success"`
	Message              string   `json:"message"`
	OrganizationsDeleted []string `json:"organizations_deleted"`
}

// FunctionResponse is the body of the delete-user-account function route.
// Error and ErrorType are only set when Success is false.
type FunctionResponse struct {
	Success              bool     `json:"success"`
	Message              string   `json:"message"`
	Error                string   `json:"error,omitempty"`
	ErrorType            string   `json:"errorType,omitempty"`
	OrganizationsDeleted []string `json:"organizations_deleted,omitempty"`
}
