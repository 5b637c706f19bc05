package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StoreConfig holds store-level configuration shared by the PostgreSQL stores.
// Pool configuration is handled separately via PoolConfig.
type StoreConfig struct {
	// CleanupTimeoutSeconds bounds the delete_user_account procedure call.
	// Default: 30 seconds
	// Set to a negative value to use context timeouts only
	CleanupTimeoutSeconds int32
}

// Validate checks that the configuration is valid.
func (c *StoreConfig) Validate() error {
	if c.CleanupTimeoutSeconds > 600 {
		return fmt.Errorf("cleanup timeout must be at most 600 seconds")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *StoreConfig) ApplyDefaults() {
	if c.CleanupTimeoutSeconds == 0 {
		c.CleanupTimeoutSeconds = 30
	}
}

func (c *StoreConfig) cleanupTimeout() time.Duration {
	if c == nil || c.CleanupTimeoutSeconds < 0 {
		return 0
	}
	return time.Duration(c.CleanupTimeoutSeconds) * time.Second
}

// Stores bundles the PostgreSQL stores sharing one connection pool.
type Stores struct {
	Identities    *IdentityStore
	Profiles      *ProfileStore
	Organizations *OrganizationStore
	Settings      *SettingsStore
	RoleBindings  *RoleBindingStore
	Sessions      *SessionStore
	Invitations   *InvitationStore
	Accounts      *AccountStore
}

// NewStores creates every store on top of the given pool.
func NewStores(pool *pgxpool.Pool, cfg *StoreConfig) (*Stores, error) {
	if cfg == nil {
		cfg = &StoreConfig{}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	return &Stores{
		Identities:    NewIdentityStore(pool),
		Profiles:      NewProfileStore(pool),
		Organizations: NewOrganizationStore(pool),
		Settings:      NewSettingsStore(pool),
		RoleBindings:  NewRoleBindingStore(pool),
		Sessions:      NewSessionStore(pool),
		Invitations:   NewInvitationStore(pool),
		Accounts:      NewAccountStore(pool, cfg),
	}, nil
}
