package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store"
)

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with other stores.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{
		pool: pool,
	}
}

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (
			org_id, name, created_by, country, logo_url, workspace_handle, referral_source,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		org.CreatedBy,
		org.Country,
		org.LogoURL,
		org.WorkspaceHandle,
		org.ReferralSource,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := `
		SELECT org_id, name, created_by, country, logo_url, workspace_handle, referral_source,
			created_at, updated_at
		FROM organizations
		WHERE org_id = $1
	`

	var org models.Organization
	err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&org.OrgID,
		&org.Name,
		&org.CreatedBy,
		&org.Country,
		&org.LogoURL,
		&org.WorkspaceHandle,
		&org.ReferralSource,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// Update updates an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	org.UpdatedAt = time.Now()

	query := `
		UPDATE organizations SET
			name = $2,
			country = $3,
			logo_url = $4,
			workspace_handle = $5,
			referral_source = $6,
			updated_at = $7
		WHERE org_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		org.Country,
		org.LogoURL,
		org.WorkspaceHandle,
		org.ReferralSource,
		org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Msg("Updated organization")

	return nil
}

// Delete deletes an organization by ID.
// Settings, role bindings and invitations are cascade-deleted via FK constraints.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM organizations WHERE org_id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Info().
		Str("org_id", orgID.String()).
		Msg("Deleted organization")

	return nil
}

// SettingsStore implements store.SettingsStore using PostgreSQL.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore creates a new PostgreSQL-backed organization settings store.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{
		pool: pool,
	}
}

func (s *SettingsStore) Get(ctx context.Context, orgID uuid.UUID) (*models.OrganizationSettings, error) {
	query := `
		SELECT org_id, has_completed_onboarding, use_case, onboarding_step, created_at, updated_at
		FROM organization_settings
		WHERE org_id = $1
	`

	var settings models.OrganizationSettings
	err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&settings.OrgID,
		&settings.HasCompletedOnboarding,
		&settings.UseCase,
		&settings.OnboardingStep,
		&settings.CreatedAt,
		&settings.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to get organization settings: %w", err)
	}

	return &settings, nil
}

// Create inserts the settings row. A concurrent insert for the same organization
// surfaces as ErrSettingsAlreadyExists via the primary key.
func (s *SettingsStore) Create(ctx context.Context, settings *models.OrganizationSettings) error {
	query := `
		INSERT INTO organization_settings (
			org_id, has_completed_onboarding, use_case, onboarding_step, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := s.pool.Exec(ctx, query,
		settings.OrgID,
		settings.HasCompletedOnboarding,
		settings.UseCase,
		settings.OnboardingStep,
		settings.CreatedAt,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create organization settings: %w", mapPostgresError(err))
	}

	return nil
}

func (s *SettingsStore) Update(ctx context.Context, settings *models.OrganizationSettings) error {
	settings.UpdatedAt = time.Now()

	query := `
		UPDATE organization_settings SET
			has_completed_onboarding = $2,
			use_case = $3,
			onboarding_step = $4,
			updated_at = $5
		WHERE org_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		settings.OrgID,
		settings.HasCompletedOnboarding,
		settings.UseCase,
		settings.OnboardingStep,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update organization settings: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrSettingsNotFound
	}

	return nil
}

func (s *SettingsStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM organization_settings WHERE org_id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete organization settings: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrSettingsNotFound
	}

	return nil
}
