package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/rubberband-os/rubberband/internal/store"
)

// AccountStore implements store.AccountStore by calling the delete_user_account procedure.
type AccountStore struct {
	pool *pgxpool.Pool
	cfg  *StoreConfig
}

// NewAccountStore creates a new PostgreSQL-backed account cleanup store.
func NewAccountStore(pool *pgxpool.Pool, cfg *StoreConfig) *AccountStore {
	return &AccountStore{
		pool: pool,
		cfg:  cfg,
	}
}

// DeleteUserAccount runs the cascading cleanup in a single database transaction.
func (s *AccountStore) DeleteUserAccount(ctx context.Context, identityID uuid.UUID) (*store.AccountDeletionReport, error) {
	if timeout := s.cfg.cleanupTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	report := &store.AccountDeletionReport{}
	var memberships int32

	err := s.pool.QueryRow(ctx,
		`SELECT deleted, organizations_deleted, memberships_removed FROM delete_user_account($1)`,
		identityID,
	).Scan(&report.Deleted, &report.OrganizationsDeleted, &memberships)
	if err != nil {
		return nil, fmt.Errorf("delete_user_account failed: %w", mapPostgresError(err))
	}
	report.MembershipsRemoved = int(memberships)

	log.Info().
		Str("identity_id", identityID.String()).
		Bool("deleted", report.Deleted).
		Int("organizations_deleted", len(report.OrganizationsDeleted)).
		Int("memberships_removed", report.MembershipsRemoved).
		Msg("Ran account cleanup procedure")

	return report, nil
}
