// Package workflow holds the building blocks shared by the provisioning and
// deprovisioning orchestrators: the error taxonomy, step results and the
// compensation stack.
package workflow

import (
	"errors"
	"fmt"
)

// ErrorType classifies a workflow failure for callers and operators.
type ErrorType string

const (
	// Provisioning
	AccountCreationFailed      ErrorType = "AccountCreationFailed"
	OrganizationCreationFailed ErrorType = "OrganizationCreationFailed"
	RoleAssignmentFailed       ErrorType = "RoleAssignmentFailed"
	ProfileVerificationFailed  ErrorType = "ProfileVerificationFailed"
	SettingsInitFailed         ErrorType = "SettingsInitFailed"
	AlreadyProvisioned         ErrorType = "AlreadyProvisioned"

	// Deprovisioning
	ServiceMisconfigured   ErrorType = "ServiceMisconfigured"
	DataCleanupFailed      ErrorType = "DataCleanupFailed"
	IdentityDeletionFailed ErrorType = "IdentityDeletionFailed"

	// Input and authentication failures before any step runs
	InvalidRequest ErrorType = "InvalidRequest"
	Unauthorized   ErrorType = "Unauthorized"
)

// Fatal reports whether an error of this type aborts its workflow.
func (t ErrorType) Fatal() bool {
	switch t {
	case ProfileVerificationFailed, SettingsInitFailed:
		return false
	default:
		return true
	}
}

// Error is a typed workflow failure. Message is safe to show to end users,
// Err carries the underlying cause for logs.
type Error struct {
	Type    ErrorType
	Step    string
	Message string
	Err     error
}

// NewError creates a workflow error for the given step.
func NewError(typ ErrorType, step, message string, err error) *Error {
	return &Error{Type: typ, Step: step, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TypeOf returns the ErrorType of the first workflow error in err's chain, or "" if none.
func TypeOf(err error) ErrorType {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Type
	}
	return ""
}
