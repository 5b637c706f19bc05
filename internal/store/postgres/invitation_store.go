package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store"
)

const invitationColumns = `invitation_id, org_id, email, role, token, invited_by, created_at, expires_at, accepted_at`

// InvitationStore implements store.InvitationStore using PostgreSQL.
type InvitationStore struct {
	pool *pgxpool.Pool
}

// NewInvitationStore creates a new PostgreSQL-backed invitation store.
func NewInvitationStore(pool *pgxpool.Pool) *InvitationStore {
	return &InvitationStore{
		pool: pool,
	}
}

func (s *InvitationStore) Create(ctx context.Context, invitation *models.Invitation) error {
	query := `
		INSERT INTO invitations (` + invitationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		invitation.InvitationID,
		invitation.OrgID,
		invitation.Email,
		invitation.Role,
		invitation.Token,
		invitation.InvitedBy,
		invitation.CreatedAt,
		invitation.ExpiresAt,
		invitation.AcceptedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", mapPostgresError(err))
	}

	return nil
}

func (s *InvitationStore) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE token = $1`

	invitation, err := scanInvitation(s.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	return invitation, nil
}

// MarkAccepted only updates rows still pending, so two concurrent accepts cannot both succeed.
func (s *InvitationStore) MarkAccepted(ctx context.Context, invitationID uuid.UUID, at time.Time) error {
	result, err := s.pool.Exec(ctx,
		`UPDATE invitations SET accepted_at = $2 WHERE invitation_id = $1 AND accepted_at IS NULL`,
		invitationID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to accept invitation: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM invitations WHERE invitation_id = $1)`, invitationID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check invitation: %w", err)
		}
		if exists {
			return store.ErrInvitationAlreadyAccepted
		}
		return store.ErrInvitationNotFound
	}

	return nil
}

func (s *InvitationStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE org_id = $1 ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", mapPostgresError(err))
	}
	defer rows.Close()

	invitations := []*models.Invitation{}
	for rows.Next() {
		invitation, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, invitation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invitations: %w", err)
	}

	return invitations, nil
}

func scanInvitation(row pgx.Row) (*models.Invitation, error) {
	var invitation models.Invitation
	err := row.Scan(
		&invitation.InvitationID,
		&invitation.OrgID,
		&invitation.Email,
		&invitation.Role,
		&invitation.Token,
		&invitation.InvitedBy,
		&invitation.CreatedAt,
		&invitation.ExpiresAt,
		&invitation.AcceptedAt,
	)
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}
