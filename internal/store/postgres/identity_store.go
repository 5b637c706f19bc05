package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store"
)

const identityColumns = `identity_id, email, password_hash, created_at, updated_at, last_login_at`

// IdentityStore implements store.IdentityStore using PostgreSQL.
type IdentityStore struct {
	pool *pgxpool.Pool
}

// NewIdentityStore creates a new PostgreSQL-backed identity store.
func NewIdentityStore(pool *pgxpool.Pool) *IdentityStore {
	return &IdentityStore{
		pool: pool,
	}
}

// Create creates a new identity in the database.
func (s *IdentityStore) Create(ctx context.Context, identity *models.Identity) error {
	identity.Email = strings.ToLower(identity.Email)

	query := `
		INSERT INTO identities (
			identity_id, email, password_hash, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err := s.pool.Exec(ctx, query,
		identity.IdentityID,
		identity.Email,
		identity.PasswordHash,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("identity_id", identity.IdentityID.String()).
		Msg("Created identity")

	return nil
}

// Get retrieves an identity by ID.
func (s *IdentityStore) Get(ctx context.Context, identityID uuid.UUID) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE identity_id = $1`
	return s.getOne(ctx, query, identityID)
}

// GetByEmail retrieves an identity by email, case-insensitively.
func (s *IdentityStore) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE lower(email) = lower($1)`
	return s.getOne(ctx, query, email)
}

func (s *IdentityStore) getOne(ctx context.Context, query string, arg any) (*models.Identity, error) {
	identity, err := scanIdentity(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

// UpdateLastLogin records a successful sign in.
func (s *IdentityStore) UpdateLastLogin(ctx context.Context, identityID uuid.UUID, at time.Time) error {
	result, err := s.pool.Exec(ctx,
		`UPDATE identities SET last_login_at = $2, updated_at = $2 WHERE identity_id = $1`,
		identityID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrIdentityNotFound
	}

	return nil
}

// List returns identities ordered by creation time.
func (s *IdentityStore) List(ctx context.Context, opts store.ListIdentitiesOptions) ([]*models.Identity, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + identityColumns + `
		FROM identities
		ORDER BY created_at, identity_id
		LIMIT $1 OFFSET $2
	`

	rows, err := s.pool.Query(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", mapPostgresError(err))
	}
	defer rows.Close()

	identities := []*models.Identity{}
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, identity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identities: %w", err)
	}

	return identities, nil
}

// Delete permanently removes an identity.
func (s *IdentityStore) Delete(ctx context.Context, identityID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE identity_id = $1`, identityID)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrIdentityNotFound
	}

	log.Info().
		Str("identity_id", identityID.String()).
		Msg("Deleted identity")

	return nil
}

func scanIdentity(row pgx.Row) (*models.Identity, error) {
	var identity models.Identity
	err := row.Scan(
		&identity.IdentityID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.CreatedAt,
		&identity.UpdatedAt,
		&identity.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// ProfileStore implements store.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a new PostgreSQL-backed profile store.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{
		pool: pool,
	}
}

func (s *ProfileStore) Get(ctx context.Context, identityID uuid.UUID) (*models.Profile, error) {
	query := `
		SELECT identity_id, email, full_name, avatar_url, created_at, updated_at
		FROM profiles
		WHERE identity_id = $1
	`

	var profile models.Profile
	err := s.pool.QueryRow(ctx, query, identityID).Scan(
		&profile.IdentityID,
		&profile.Email,
		&profile.FullName,
		&profile.AvatarURL,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &profile, nil
}

func (s *ProfileStore) Create(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (
			identity_id, email, full_name, avatar_url, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := s.pool.Exec(ctx, query,
		profile.IdentityID,
		profile.Email,
		profile.FullName,
		profile.AvatarURL,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", mapPostgresError(err))
	}

	return nil
}

func (s *ProfileStore) Update(ctx context.Context, profile *models.Profile) error {
	profile.UpdatedAt = time.Now()

	query := `
		UPDATE profiles SET
			email = $2,
			full_name = $3,
			avatar_url = $4,
			updated_at = $5
		WHERE identity_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		profile.IdentityID,
		profile.Email,
		profile.FullName,
		profile.AvatarURL,
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrProfileNotFound
	}

	return nil
}

func (s *ProfileStore) Delete(ctx context.Context, identityID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE identity_id = $1`, identityID)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrProfileNotFound
	}

	return nil
}
