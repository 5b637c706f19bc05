// Package provisioning turns a sign-up request into a tenant with a single admin member.
//
// Provisioning runs five strictly sequential steps. The first three are fatal and
// leave whatever they already created in place; the last two are non-fatal and only
// reported as warnings. Identities orphaned by a fatal failure are reconciled through
// Resume after the user signs in.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/rubberband-os/rubberband/internal/auth"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/notify"
	"github.com/rubberband-os/rubberband/internal/store"
	"github.com/rubberband-os/rubberband/internal/telemetry"
	"github.com/rubberband-os/rubberband/internal/workflow"
)

const workflowName = "provisioning"

// Step names
const (
	StepValidate           = "validate"
	StepCreateIdentity     = "create_identity"
	StepCreateOrganization = "create_organization"
	StepAssignRole         = "assign_role"
	StepVerifyProfile      = "verify_profile"
	StepInitSettings       = "init_settings"
)

// State is a provisioning state machine position.
type State string

const (
	StateStart               State = "Start"
	StateIdentityCreated     State = "IdentityCreated"
	StateOrganizationCreated State = "OrganizationCreated"
	StateRoleBound           State = "RoleBound"
	StateProfileChecked      State = "ProfileChecked"
	StateSettingsChecked     State = "SettingsChecked"
	StateDone                State = "Done"

	StateAbortedAtIdentity     State = "AbortedAtIdentity"
	StateAbortedAtOrganization State = "AbortedAtOrganization"
	StateAbortedAtRole         State = "AbortedAtRole"
)

// Terminal reports whether no further step can run from this state.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateAbortedAtIdentity, StateAbortedAtOrganization, StateAbortedAtRole:
		return true
	default:
		return false
	}
}

var validate = validator.New()

// Organization holds the details of the organization to create.
type Organization struct {
	Name            string `validate:"required,max=100"`
	Country         string `validate:"omitempty,len=2,alpha"`
	LogoURL         string `validate:"omitempty,url,max=2048"`
	WorkspaceHandle string `validate:"omitempty,alphanum,min=3,max=40"`
	ReferralSource  string `validate:"omitempty,max=100"`
}

// Request is a sign-up request.
type Request struct {
	Email        string `validate:"required,email,max=254"`
	Password     string `validate:"required,min=8,max=72"`
	FullName     string `validate:"omitempty,max=200"`
	Organization Organization
}

// Result describes where a provisioning run ended.
type Result struct {
	State        State
	Identity     *models.Identity
	Organization *models.Organization
	Steps        []workflow.StepResult

	// Warnings are non-fatal step failures of a successful run.
	Warnings []*workflow.Error

	// Retained lists completed steps that were intentionally not undone after a fatal failure.
	Retained []workflow.Compensation
}

// Provisioned reports whether the run reached Done.
func (r *Result) Provisioned() bool {
	return r.State == StateDone
}

// IdentityCreator creates identities in the identity service.
type IdentityCreator interface {
	SignUp(ctx context.Context, email, password string) (*models.Identity, error)
}

// Stores are the data service tables provisioning writes to.
type Stores struct {
	Organizations store.OrganizationStore
	RoleBindings  store.RoleBindingStore
	Profiles      store.ProfileStore
	Settings      store.SettingsStore
}

// Provisioner runs the sign-up workflow.
type Provisioner struct {
	identities  IdentityCreator
	stores      Stores
	notifier    notify.Notifier
	sendTimeout time.Duration
	metrics     *telemetry.Metrics
}

// New creates a Provisioner. A nil notifier disables the welcome email.
func New(identities IdentityCreator, stores Stores, notifier notify.Notifier) *Provisioner {
	return &Provisioner{
		identities:  identities,
		stores:      stores,
		notifier:    notifier,
		sendTimeout: notify.SendTimeout,
		metrics:     telemetry.GetMetrics(),
	}
}

// run tracks one invocation of the workflow.
type run struct {
	p      *Provisioner
	result *Result
	comps  workflow.Compensations
	email  string
	name   string
}

// Provision runs all five steps for a new sign-up.
// On a fatal failure it returns the partial Result together with a *workflow.Error.
func (p *Provisioner) Provision(ctx context.Context, req Request) (*Result, error) {
	req.Organization.Name = strings.TrimSpace(req.Organization.Name)
	req.Email = strings.TrimSpace(req.Email)

	r := &run{p: p, result: &Result{State: StateStart}, email: req.Email, name: req.FullName}

	if err := validate.Struct(req); err != nil {
		werr := workflow.NewError(workflow.InvalidRequest, StepValidate, validationMessage(err), err)
		log.Debug().Err(err).Msg("Provisioning request rejected")
		return r.result, werr
	}

	if err := r.createIdentity(ctx, req.Email, req.Password); err != nil {
		return r.abort(ctx, StateAbortedAtIdentity, err)
	}

	return r.provisionTenant(ctx, req.Organization)
}

// Resume runs steps 2 to 5 for an identity whose earlier sign-up stopped before it was bound
// to an organization. It fails with AlreadyProvisioned if the identity has any role binding.
func (p *Provisioner) Resume(ctx context.Context, session auth.UserSession, org Organization) (*Result, error) {
	org.Name = strings.TrimSpace(org.Name)
	r := &run{p: p, result: &Result{State: StateIdentityCreated}, email: session.Email()}
	r.result.Identity = &models.Identity{IdentityID: session.IdentityID(), Email: session.Email()}

	if err := validate.Struct(org); err != nil {
		return r.result, workflow.NewError(workflow.InvalidRequest, StepValidate, validationMessage(err), err)
	}

	bindings, err := p.stores.RoleBindings.ListByIdentity(ctx, session.IdentityID())
	if err != nil {
		return r.result, workflow.NewError(workflow.OrganizationCreationFailed, StepCreateOrganization,
			"could not check existing memberships", err)
	}
	if len(bindings) > 0 {
		log.Info().
			Str("identity_id", session.IdentityID().String()).
			Int("memberships", len(bindings)).
			Msg("Resume refused, identity already belongs to an organization")
		return r.result, workflow.NewError(workflow.AlreadyProvisioned, StepCreateOrganization,
			"your account already belongs to an organization", nil)
	}

	r.comps.Retain(StepCreateIdentity, "identity created by an earlier sign-up")
	return r.provisionTenant(ctx, org)
}

// NeedsOrganization reports whether the identity exists but belongs to no organization,
// the state left behind by a sign-up that aborted at step 2 or 3.
func (p *Provisioner) NeedsOrganization(ctx context.Context, identityID uuid.UUID) (bool, error) {
	bindings, err := p.stores.RoleBindings.ListByIdentity(ctx, identityID)
	if err != nil {
		return false, fmt.Errorf("failed to list memberships: %w", err)
	}
	return len(bindings) == 0, nil
}

func (r *run) provisionTenant(ctx context.Context, details Organization) (*Result, error) {
	if err := r.createOrganization(ctx, details); err != nil {
		return r.abort(ctx, StateAbortedAtOrganization, err)
	}

	if err := r.assignRole(ctx); err != nil {
		return r.abort(ctx, StateAbortedAtRole, err)
	}

	r.ensureProfile(ctx)
	r.ensureSettings(ctx)

	r.result.State = StateDone
	r.p.metrics.RecordRun(ctx, workflowName, string(StateDone))

	log.Info().
		Str("identity_id", r.result.Identity.IdentityID.String()).
		Str("org_id", r.result.Organization.OrgID.String()).
		Int("warnings", len(r.result.Warnings)).
		Msg("Provisioning completed")

	r.sendWelcome(ctx)

	return r.result, nil
}

func (r *run) createIdentity(ctx context.Context, email, password string) error {
	start := time.Now()
	identity, err := r.p.identities.SignUp(ctx, email, password)
	if err != nil {
		message := "could not create your account"
		if errors.Is(err, store.ErrIdentityAlreadyExists) {
			message = "an account with this email already exists, sign in instead"
		} else if errors.Is(err, auth.ErrWeakPassword) {
			message = auth.ErrWeakPassword.Error()
		}
		return r.fail(ctx, workflow.AccountCreationFailed, StepCreateIdentity, message, err, start)
	}

	r.result.Identity = identity
	r.email = identity.Email
	r.result.State = StateIdentityCreated
	// The identity survives later failures; the next sign in resumes from here
	r.comps.Retain(StepCreateIdentity, "orphaned identity is reconciled by Resume after sign in")
	r.succeed(ctx, StepCreateIdentity, start)
	return nil
}

func (r *run) createOrganization(ctx context.Context, details Organization) error {
	start := time.Now()

	orgID, err := uuid.NewV7()
	if err != nil {
		return r.fail(ctx, workflow.OrganizationCreationFailed, StepCreateOrganization,
			"could not create your organization", err, start)
	}

	now := time.Now()
	org := &models.Organization{
		OrgID:           orgID,
		Name:            details.Name,
		CreatedBy:       r.result.Identity.IdentityID,
		Country:         optional(strings.ToUpper(details.Country)),
		LogoURL:         optional(details.LogoURL),
		WorkspaceHandle: optional(strings.ToLower(details.WorkspaceHandle)),
		ReferralSource:  optional(details.ReferralSource),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := r.p.stores.Organizations.Create(ctx, org); err != nil {
		message := "could not create your organization, sign in to try again"
		if errors.Is(err, store.ErrOrganizationAlreadyExists) && org.WorkspaceHandle != nil {
			message = "that workspace handle is taken, sign in to choose another"
		}
		return r.fail(ctx, workflow.OrganizationCreationFailed, StepCreateOrganization, message, err, start)
	}

	r.result.Organization = org
	r.result.State = StateOrganizationCreated
	r.comps.Retain(StepCreateOrganization, "organization without members is removed when its creator deletes the account")
	r.succeed(ctx, StepCreateOrganization, start)
	return nil
}

func (r *run) assignRole(ctx context.Context) error {
	start := time.Now()
	now := time.Now()

	binding := &models.RoleBinding{
		IdentityID: r.result.Identity.IdentityID,
		OrgID:      r.result.Organization.OrgID,
		Role:       models.RoleAdmin,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := r.p.stores.RoleBindings.Create(ctx, binding); err != nil {
		return r.fail(ctx, workflow.RoleAssignmentFailed, StepAssignRole,
			"could not finish setting up your organization, sign in to try again", err, start)
	}

	r.result.State = StateRoleBound
	r.succeed(ctx, StepAssignRole, start)
	return nil
}

// ensureProfile creates the profile unless one already exists (e.g. written by a trigger).
func (r *run) ensureProfile(ctx context.Context) {
	start := time.Now()
	identityID := r.result.Identity.IdentityID

	_, err := r.p.stores.Profiles.Get(ctx, identityID)
	switch {
	case err == nil:
		r.skip(ctx, StepVerifyProfile, start)
	case errors.Is(err, store.ErrProfileNotFound):
		now := time.Now()
		err = r.p.stores.Profiles.Create(ctx, &models.Profile{
			IdentityID: identityID,
			Email:      r.email,
			FullName:   optional(strings.TrimSpace(r.name)),
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err == nil || errors.Is(err, store.ErrProfileAlreadyExists) {
			r.succeed(ctx, StepVerifyProfile, start)
			break
		}
		r.warn(ctx, workflow.ProfileVerificationFailed, StepVerifyProfile, "profile could not be created", err, start)
	default:
		r.warn(ctx, workflow.ProfileVerificationFailed, StepVerifyProfile, "profile could not be verified", err, start)
	}

	if r.result.State == StateRoleBound {
		r.result.State = StateProfileChecked
	}
}

// ensureSettings creates the organization settings row unless it already exists.
// A row inserted concurrently between the check and the insert is treated as success.
func (r *run) ensureSettings(ctx context.Context) {
	start := time.Now()
	orgID := r.result.Organization.OrgID

	_, err := r.p.stores.Settings.Get(ctx, orgID)
	switch {
	case err == nil:
		r.skip(ctx, StepInitSettings, start)
	case errors.Is(err, store.ErrSettingsNotFound):
		now := time.Now()
		err = r.p.stores.Settings.Create(ctx, &models.OrganizationSettings{
			OrgID:                  orgID,
			HasCompletedOnboarding: false,
			CreatedAt:              now,
			UpdatedAt:              now,
		})
		if err == nil || errors.Is(err, store.ErrSettingsAlreadyExists) {
			r.succeed(ctx, StepInitSettings, start)
			break
		}
		r.warn(ctx, workflow.SettingsInitFailed, StepInitSettings, "organization settings could not be created", err, start)
	default:
		r.warn(ctx, workflow.SettingsInitFailed, StepInitSettings, "organization settings could not be verified", err, start)
	}

	r.result.State = StateSettingsChecked
}

func (r *run) sendWelcome(ctx context.Context) {
	if r.p.notifier == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, r.p.sendTimeout)
	defer cancel()

	msg := notify.WelcomeMessage(r.email, r.result.Organization.Name)
	if err := r.p.notifier.Send(sendCtx, msg); err != nil {
		r.p.metrics.NotificationErrorsTotal.Add(ctx, 1)
		log.Warn().Err(err).
			Str("identity_id", r.result.Identity.IdentityID.String()).
			Msg("Failed to send welcome email")
	}
}

func (r *run) succeed(ctx context.Context, step string, start time.Time) {
	r.record(ctx, workflow.StepResult{Step: step, Outcome: workflow.Success, Duration: time.Since(start)})
}

func (r *run) skip(ctx context.Context, step string, start time.Time) {
	log.Debug().Str("step", step).Msg("Provisioning step already satisfied")
	r.record(ctx, workflow.StepResult{Step: step, Outcome: workflow.Skipped, Duration: time.Since(start)})
}

func (r *run) warn(ctx context.Context, typ workflow.ErrorType, step, message string, err error, start time.Time) {
	werr := workflow.NewError(typ, step, message, err)
	log.Warn().Err(err).
		Str("step", step).
		Str("error_type", string(typ)).
		Str("identity_id", r.result.Identity.IdentityID.String()).
		Msg("Non-fatal provisioning step failed")

	r.result.Warnings = append(r.result.Warnings, werr)
	r.p.metrics.RecordFailure(ctx, workflowName, string(typ))
	r.record(ctx, workflow.StepResult{Step: step, Outcome: workflow.NonFatalFailure, Err: werr, Duration: time.Since(start)})
}

func (r *run) fail(ctx context.Context, typ workflow.ErrorType, step, message string, err error, start time.Time) error {
	werr := workflow.NewError(typ, step, message, err)
	log.Error().Err(err).
		Str("step", step).
		Str("error_type", string(typ)).
		Msg("Provisioning step failed")

	r.p.metrics.RecordFailure(ctx, workflowName, string(typ))
	r.record(ctx, workflow.StepResult{Step: step, Outcome: workflow.FatalFailure, Err: werr, Duration: time.Since(start)})
	return werr
}

func (r *run) record(ctx context.Context, sr workflow.StepResult) {
	r.result.Steps = append(r.result.Steps, sr)
	r.p.metrics.RecordStep(ctx, workflowName, sr.Step, string(sr.Outcome), sr.Duration)
}

// abort ends the run in a terminal failure state. Completed steps are unwound, which
// for provisioning means recording what is intentionally left in place.
func (r *run) abort(ctx context.Context, state State, err error) (*Result, error) {
	r.result.State = state
	retained, undoErrs := r.comps.Unwind(ctx)
	r.result.Retained = retained
	for _, undoErr := range undoErrs {
		log.Error().Err(undoErr).Msg("Provisioning compensation failed")
	}

	if len(retained) > 0 {
		evt := log.Warn().Str("state", string(state))
		if r.result.Identity != nil {
			evt = evt.Str("identity_id", r.result.Identity.IdentityID.String())
		}
		evt.Int("retained_steps", len(retained)).Msg("Provisioning aborted, earlier steps left in place")
	}

	r.p.metrics.RecordRun(ctx, workflowName, string(state))
	return r.result, err
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	return fmt.Sprintf("%s is invalid (%s)", strings.ToLower(fe.Field()), fe.Tag())
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
