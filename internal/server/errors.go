package server

import (
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"
	"github.com/rubberband-os/rubberband/internal/auth"
	"github.com/rubberband-os/rubberband/internal/identity"
	"github.com/rubberband-os/rubberband/internal/invitations"
	"github.com/rubberband-os/rubberband/internal/store"
	"github.com/rubberband-os/rubberband/internal/workflow"
)

// ErrorTypeHeader carries the workflow error type on connect error responses.
const ErrorTypeHeader = "Rubberband-Error-Type"

// workflowCode maps a workflow failure to a connect code. A few types depend on the cause.
func workflowCode(werr *workflow.Error) connect.Code {
	switch werr.Type {
	case workflow.InvalidRequest:
		return connect.CodeInvalidArgument
	case workflow.Unauthorized:
		return connect.CodeUnauthenticated
	case workflow.AlreadyProvisioned:
		return connect.CodeFailedPrecondition
	case workflow.ServiceMisconfigured:
		return connect.CodeUnavailable
	case workflow.AccountCreationFailed:
		switch {
		case errors.Is(werr.Err, store.ErrIdentityAlreadyExists):
			return connect.CodeAlreadyExists
		case errors.Is(werr.Err, auth.ErrWeakPassword), errors.Is(werr.Err, identity.ErrInvalidEmail):
			return connect.CodeInvalidArgument
		}
	case workflow.OrganizationCreationFailed:
		if errors.Is(werr.Err, store.ErrOrganizationAlreadyExists) {
			return connect.CodeAlreadyExists
		}
	}
	return connect.CodeInternal
}

// toConnectError converts service errors into connect errors safe to return to callers.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}

	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr
	}

	var werr *workflow.Error
	if errors.As(err, &werr) {
		out := connect.NewError(workflowCode(werr), errors.New(werr.Message))
		out.Meta().Set(ErrorTypeHeader, string(werr.Type))
		return out
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidCredentials)
	case errors.Is(err, auth.ErrUnauthenticated):
		return connect.NewError(connect.CodeUnauthenticated, errors.New("invalid or expired session"))
	case errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, invitations.ErrInvalidRole):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, invitations.ErrPermissionDenied):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, invitations.ErrExpired),
		errors.Is(err, invitations.ErrEmailMismatch),
		errors.Is(err, store.ErrInvitationAlreadyAccepted):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, store.ErrRoleBindingAlreadyExists):
		return connect.NewError(connect.CodeAlreadyExists, errors.New("already a member of this organization"))
	case errors.Is(err, store.ErrInvitationNotFound),
		errors.Is(err, store.ErrOrganizationNotFound),
		errors.Is(err, store.ErrIdentityNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	}

	log.Error().Err(err).Msg("Unhandled service error")
	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}

// functionStatus is the HTTP status of a failed delete-user-account call.
func functionStatus(typ workflow.ErrorType) int {
	switch typ {
	case workflow.Unauthorized:
		return http.StatusUnauthorized
	case workflow.InvalidRequest:
		return http.StatusBadRequest
	case workflow.ServiceMisconfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
