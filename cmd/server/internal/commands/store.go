package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rubberband-os/rubberband/internal/store"
	memorystore "github.com/rubberband-os/rubberband/internal/store/memory"
	postgresstore "github.com/rubberband-os/rubberband/internal/store/postgres"
)

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Store Configuration
	CleanupTimeout int32 `help:"timeout in seconds for the delete_user_account procedure" default:"30"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`
	StartupTimeout  int32 `help:"seconds to keep retrying the first connection" default:"60"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"RUBBERBAND_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresStoreFlags) newPool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString:      s.ConnString,
		MaxConns:        s.MaxConns,
		MinConns:        s.MinConns,
		MaxConnLifetime: s.MaxConnLifetime,
		MaxConnIdleTime: s.MaxConnIdleTime,
		StartupTimeout:  s.StartupTimeout,
	})
}

// stores is the set of stores the server runs on, whichever backend provides them.
type stores struct {
	Identities    store.IdentityStore
	Profiles      store.ProfileStore
	Organizations store.OrganizationStore
	Settings      store.SettingsStore
	RoleBindings  store.RoleBindingStore
	Sessions      store.SessionStore
	Invitations   store.InvitationStore
	Accounts      store.AccountStore

	close func()
}

func openStores(ctx context.Context, log zerolog.Logger, storeType string, flags PostgresStoreFlags) (*stores, error) {
	if storeType != "postgres" {
		mem := memorystore.NewStores()
		log.Warn().Msg("Using in-memory stores, all data is lost on restart")
		return &stores{
			Identities:    mem.Identities,
			Profiles:      mem.Profiles,
			Organizations: mem.Organizations,
			Settings:      mem.Settings,
			RoleBindings:  mem.RoleBindings,
			Sessions:      mem.Sessions,
			Invitations:   mem.Invitations,
			Accounts:      mem.Accounts,
			close:         func() {},
		}, nil
	}

	pool, err := flags.newPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if flags.AutoMigrate {
		if err := postgresstore.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info().Msg("Database migrations completed")
	}

	pg, err := postgresstore.NewStores(pool, &postgresstore.StoreConfig{CleanupTimeoutSeconds: flags.CleanupTimeout})
	if err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	return &stores{
		Identities:    pg.Identities,
		Profiles:      pg.Profiles,
		Organizations: pg.Organizations,
		Settings:      pg.Settings,
		RoleBindings:  pg.RoleBindings,
		Sessions:      pg.Sessions,
		Invitations:   pg.Invitations,
		Accounts:      pg.Accounts,
		close:         pool.Close,
	}, nil
}
