package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rubberband-os/rubberband/internal/store"
	"github.com/stretchr/testify/require"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "duplicate email",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "identities_email_key"},
			want: store.ErrIdentityAlreadyExists,
		},
		{
			name: "duplicate settings row",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "organization_settings_pkey"},
			want: store.ErrSettingsAlreadyExists,
		},
		{
			name: "duplicate binding",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "role_bindings_pkey"},
			want: store.ErrRoleBindingAlreadyExists,
		},
		{
			name: "binding to missing organization",
			err:  &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: "role_bindings_org_id_fkey"},
			want: store.ErrOrganizationNotFound,
		},
		{
			name: "binding to missing identity",
			err:  &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: "role_bindings_identity_id_fkey"},
			want: store.ErrIdentityNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, mapPostgresError(tt.err), tt.want)
		})
	}

	t.Run("non postgres errors pass through", func(t *testing.T) {
		err := errors.New("boom")
		require.Equal(t, err, mapPostgresError(err))
		require.NoError(t, mapPostgresError(nil))
	})
}
