// Package deprovisioning implements self-service account deletion.
//
// The order of the steps is fixed: the administrative credential is probed before
// anything is deleted, application data is removed by the server-side cascade while
// the identity still exists, and the identity is deleted last.
package deprovisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/rubberband-os/rubberband/internal/auth"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store"
	"github.com/rubberband-os/rubberband/internal/telemetry"
	"github.com/rubberband-os/rubberband/internal/workflow"
)

const workflowName = "deprovisioning"

// Step names
const (
	StepVerifyPrivilege = "verify_privilege"
	StepDeleteData      = "delete_data"
	StepDeleteIdentity  = "delete_identity"
)

// State is a deprovisioning state machine position.
type State string

const (
	StateStart             State = "Start"
	StatePrivilegeVerified State = "PrivilegeVerified"
	StateDataDeleted       State = "DataDeleted"
	StateIdentityDeleted   State = "IdentityDeleted"
)

// AdminIdentities is the administrative identity API.
type AdminIdentities interface {
	ListIdentities(ctx context.Context, admin auth.AdminContext, pageSize int) ([]*models.Identity, error)
	DeleteIdentity(ctx context.Context, admin auth.AdminContext, identityID uuid.UUID) error
}

// SessionTerminator ends every session of the deleted identity.
type SessionTerminator interface {
	EndAll(ctx context.Context, session auth.UserSession) (int, error)
}

// Result describes where a deprovisioning run ended.
type Result struct {
	State                State
	IdentityID           uuid.UUID
	OrganizationsDeleted []uuid.UUID
	Steps                []workflow.StepResult
}

// Deprovisioner runs the account deletion workflow.
type Deprovisioner struct {
	admin    AdminIdentities
	accounts store.AccountStore
	adminCtx auth.AdminContext
	sessions SessionTerminator
	metrics  *telemetry.Metrics
}

// New creates a Deprovisioner that performs privileged calls with adminCtx.
// sessions may be nil when session cleanup is handled by the caller.
func New(admin AdminIdentities, accounts store.AccountStore, adminCtx auth.AdminContext, sessions SessionTerminator) *Deprovisioner {
	return &Deprovisioner{
		admin:    admin,
		accounts: accounts,
		adminCtx: adminCtx,
		sessions: sessions,
		metrics:  telemetry.GetMetrics(),
	}
}

// Deprovision deletes the account of the identity that owns session.
// On failure the partial Result is returned together with a *workflow.Error.
func (d *Deprovisioner) Deprovision(ctx context.Context, session auth.UserSession) (*Result, error) {
	result := &Result{State: StateStart, IdentityID: session.IdentityID()}
	logger := log.With().Str("identity_id", session.IdentityID().String()).Logger()

	if session.IsZero() {
		return result, workflow.NewError(workflow.Unauthorized, StepVerifyPrivilege, "not signed in", nil)
	}

	// Step 1: probe the administrative credential before touching anything
	start := time.Now()
	if d.adminCtx.IsZero() {
		return d.fail(ctx, result, workflow.ServiceMisconfigured, StepVerifyPrivilege,
			"account deletion is not available right now", auth.ErrMissingServiceRoleKey, start)
	}
	if _, err := d.admin.ListIdentities(ctx, d.adminCtx, 1); err != nil {
		return d.fail(ctx, result, workflow.ServiceMisconfigured, StepVerifyPrivilege,
			"account deletion is not available right now", err, start)
	}
	result.State = StatePrivilegeVerified
	d.succeed(ctx, result, StepVerifyPrivilege, start)

	// Step 2: cascade while the identity still exists for the procedure's own checks
	start = time.Now()
	report, err := d.accounts.DeleteUserAccount(ctx, session.IdentityID())
	if err == nil && !report.Deleted {
		err = errors.New("cleanup procedure declined to delete the account")
	}
	if err != nil {
		return d.fail(ctx, result, workflow.DataCleanupFailed, StepDeleteData,
			"your data could not be deleted, your account is unchanged", err, start)
	}
	result.State = StateDataDeleted
	result.OrganizationsDeleted = report.OrganizationsDeleted
	d.metrics.OrganizationsDeletedTotal.Add(ctx, int64(len(report.OrganizationsDeleted)))
	d.succeed(ctx, result, StepDeleteData, start)

	logger.Info().
		Int("organizations_deleted", len(report.OrganizationsDeleted)).
		Int("memberships_removed", report.MembershipsRemoved).
		Msg("Account data deleted")

	// Step 3: the identity goes last
	start = time.Now()
	if err := d.admin.DeleteIdentity(ctx, d.adminCtx, session.IdentityID()); err != nil {
		d.metrics.OrphanedIdentitiesTotal.Add(ctx, 1)
		logger.Error().Err(err).
			Bool("operator_action_required", true).
			Str("state", string(result.State)).
			Msg("Identity deletion failed after account data was deleted, identity must be removed manually")
		return d.fail(ctx, result, workflow.IdentityDeletionFailed, StepDeleteIdentity,
			"your data was deleted but your login could not be removed, support has been notified", err, start)
	}
	result.State = StateIdentityDeleted
	d.succeed(ctx, result, StepDeleteIdentity, start)

	if d.sessions != nil {
		if _, err := d.sessions.EndAll(ctx, session); err != nil {
			logger.Warn().Err(err).Msg("Failed to end sessions of deleted identity")
		}
	}

	d.metrics.RecordRun(ctx, workflowName, string(result.State))
	logger.Info().Msg("Account deleted")

	return result, nil
}

func (d *Deprovisioner) succeed(ctx context.Context, result *Result, step string, start time.Time) {
	sr := workflow.StepResult{Step: step, Outcome: workflow.Success, Duration: time.Since(start)}
	result.Steps = append(result.Steps, sr)
	d.metrics.RecordStep(ctx, workflowName, step, string(sr.Outcome), sr.Duration)
}

func (d *Deprovisioner) fail(ctx context.Context, result *Result, typ workflow.ErrorType, step, message string, err error, start time.Time) (*Result, error) {
	werr := workflow.NewError(typ, step, message, err)

	log.Error().Err(err).
		Str("identity_id", result.IdentityID.String()).
		Str("step", step).
		Str("error_type", string(typ)).
		Str("state", string(result.State)).
		Msg("Deprovisioning step failed")

	sr := workflow.StepResult{Step: step, Outcome: workflow.FatalFailure, Err: werr, Duration: time.Since(start)}
	result.Steps = append(result.Steps, sr)
	d.metrics.RecordStep(ctx, workflowName, step, string(sr.Outcome), sr.Duration)
	d.metrics.RecordFailure(ctx, workflowName, string(typ))
	d.metrics.RecordRun(ctx, workflowName, fmt.Sprintf("FailedAt%s", result.State))

	return result, werr
}
