package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents an organization (tenant) in the system.
// Each organization can have multiple member identities bound through role bindings.
type Organization struct {
	OrgID     uuid.UUID // UUIDv7
	Name      string
	CreatedBy uuid.UUID // identity that ran the signup, not an FK (identities may be deleted)

	// Optional descriptive fields captured during signup or onboarding
	Country         *string
	LogoURL         *string
	WorkspaceHandle *string
	ReferralSource  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrganizationSettings is one-to-one with Organization and tracks onboarding progress.
type OrganizationSettings struct {
	OrgID                  uuid.UUID
	HasCompletedOnboarding bool
	UseCase                *string
	OnboardingStep         int

	CreatedAt time.Time
	UpdatedAt time.Time
}
