package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rubberband-os/rubberband/internal/store"
)

// uniqueConstraintErrors maps unique constraints to the sentinel returned on violation.
var uniqueConstraintErrors = map[string]error{
	"identities_pkey":                    store.ErrIdentityAlreadyExists,
	"identities_email_key":               store.ErrIdentityAlreadyExists,
	"organizations_pkey":                 store.ErrOrganizationAlreadyExists,
	"organizations_workspace_handle_key": store.ErrOrganizationAlreadyExists,
	"organization_settings_pkey":         store.ErrSettingsAlreadyExists,
	"role_bindings_pkey":                 store.ErrRoleBindingAlreadyExists,
	"profiles_pkey":                      store.ErrProfileAlreadyExists,
}

// mapPostgresError maps PostgreSQL-specific errors to sentinel errors.
// Returns the original error if it's not a PostgreSQL error or doesn't match known patterns.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		if sentinel, ok := uniqueConstraintErrors[pgErr.ConstraintName]; ok {
			return sentinel
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		// Referenced identity or organization is gone
		switch pgErr.ConstraintName {
		case "role_bindings_org_id_fkey", "organization_settings_org_id_fkey", "invitations_org_id_fkey":
			return fmt.Errorf("%w: %s", store.ErrOrganizationNotFound, pgErr.Detail)
		default:
			return fmt.Errorf("%w: %s", store.ErrIdentityNotFound, pgErr.Detail)
		}

	case pgerrcode.CheckViolation:
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("database connection error: %w", err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("database server unavailable: %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("database resource limit: %w", err)

	case pgerrcode.UndefinedFunction:
		return fmt.Errorf("missing database function, run migrations: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}
