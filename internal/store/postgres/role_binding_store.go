package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store"
)

const roleBindingColumns = `identity_id, org_id, role, created_at, updated_at`

// RoleBindingStore implements store.RoleBindingStore using PostgreSQL.
type RoleBindingStore struct {
	pool *pgxpool.Pool
}

// NewRoleBindingStore creates a new PostgreSQL-backed role binding store.
func NewRoleBindingStore(pool *pgxpool.Pool) *RoleBindingStore {
	return &RoleBindingStore{
		pool: pool,
	}
}

// Create binds an identity to an organization.
func (s *RoleBindingStore) Create(ctx context.Context, binding *models.RoleBinding) error {
	query := `
		INSERT INTO role_bindings (` + roleBindingColumns + `)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		binding.IdentityID,
		binding.OrgID,
		binding.Role,
		binding.CreatedAt,
		binding.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create role binding: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("identity_id", binding.IdentityID.String()).
		Str("org_id", binding.OrgID.String()).
		Str("role", binding.Role).
		Msg("Created role binding")

	return nil
}

// Get retrieves the binding of an identity in an organization.
func (s *RoleBindingStore) Get(ctx context.Context, identityID, orgID uuid.UUID) (*models.RoleBinding, error) {
	query := `SELECT ` + roleBindingColumns + ` FROM role_bindings WHERE identity_id = $1 AND org_id = $2`

	binding, err := scanRoleBinding(s.pool.QueryRow(ctx, query, identityID, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRoleBindingNotFound
		}
		return nil, fmt.Errorf("failed to get role binding: %w", err)
	}

	return binding, nil
}

// ListByIdentity returns the bindings of an identity, oldest first.
func (s *RoleBindingStore) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]*models.RoleBinding, error) {
	query := `SELECT ` + roleBindingColumns + ` FROM role_bindings WHERE identity_id = $1 ORDER BY created_at`
	return s.list(ctx, query, identityID)
}

// ListByOrg returns the bindings of an organization, oldest first.
func (s *RoleBindingStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.RoleBinding, error) {
	query := `SELECT ` + roleBindingColumns + ` FROM role_bindings WHERE org_id = $1 ORDER BY created_at`
	return s.list(ctx, query, orgID)
}

// Delete removes a single binding.
func (s *RoleBindingStore) Delete(ctx context.Context, identityID, orgID uuid.UUID) error {
	result, err := s.pool.Exec(ctx,
		`DELETE FROM role_bindings WHERE identity_id = $1 AND org_id = $2`,
		identityID, orgID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete role binding: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrRoleBindingNotFound
	}

	return nil
}

func (s *RoleBindingStore) list(ctx context.Context, query string, arg uuid.UUID) ([]*models.RoleBinding, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list role bindings: %w", mapPostgresError(err))
	}
	defer rows.Close()

	bindings := []*models.RoleBinding{}
	for rows.Next() {
		binding, err := scanRoleBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role binding: %w", err)
		}
		bindings = append(bindings, binding)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role bindings: %w", err)
	}

	return bindings, nil
}

func scanRoleBinding(row pgx.Row) (*models.RoleBinding, error) {
	var binding models.RoleBinding
	err := row.Scan(
		&binding.IdentityID,
		&binding.OrgID,
		&binding.Role,
		&binding.CreatedAt,
		&binding.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &binding, nil
}
