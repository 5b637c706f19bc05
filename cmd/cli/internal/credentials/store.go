package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Sentinel errors
var (
	// ErrProfileNotFound is returned when a profile doesn't exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrNoDefaultProfile is returned when no default is set.
	ErrNoDefaultProfile = errors.New("no default profile set")

	// ErrNotSignedIn is returned when a profile holds no session token.
	ErrNotSignedIn = errors.New("not signed in")
)

// Profile is a signed-in account on one server.
type Profile struct {
	Name        string    `json:"name"`
	ServerURL   string    `json:"server_url"`
	Email       string    `json:"email,omitempty"`
	IdentityID  string    `json:"identity_id,omitempty"`
	AccessToken string    `json:"access_token,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SignedIn returns true if the profile holds a session token.
func (p *Profile) SignedIn() bool {
	return p.AccessToken != ""
}

// Config represents the credentials file.
type Config struct {
	Version        int                `json:"version"`
	DefaultProfile string             `json:"default_profile,omitempty"`
	Profiles       map[string]Profile `json:"profiles"`
}

// Store keeps session tokens in a single JSON file readable only by the user.
type Store struct {
	path string
}

// DefaultPath returns ~/.rubberband/credentials.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".rubberband", "credentials.json"), nil
}

// NewStore creates a credential store backed by path. An empty path uses DefaultPath.
func NewStore(path string) (*Store, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	log.Debug().Str("path", path).Msg("credential store initialized")

	return &Store{path: path}, nil
}

// Save creates or replaces a profile. The first profile saved becomes the default.
func (s *Store) Save(profile Profile) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if existing, ok := cfg.Profiles[profile.Name]; ok {
		profile.CreatedAt = existing.CreatedAt
	} else {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	cfg.Profiles[profile.Name] = profile
	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = profile.Name
	}

	return s.saveConfig(cfg)
}

// Get retrieves a profile by name.
func (s *Store) Get(name string) (*Profile, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	profile, ok := cfg.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	return &profile, nil
}

// Resolve returns the named profile, or the default profile when name is empty.
func (s *Store) Resolve(name string) (*Profile, error) {
	if name != "" {
		return s.Get(name)
	}

	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DefaultProfile == "" {
		return nil, ErrNoDefaultProfile
	}
	return s.Get(cfg.DefaultProfile)
}

// DefaultName returns the name of the default profile, or "".
func (s *Store) DefaultName() (string, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.DefaultProfile, nil
}

// List returns all profiles sorted by name.
func (s *Store) List() ([]Profile, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		profiles = append(profiles, p)
	}
	slices.SortFunc(profiles, func(a, b Profile) int { return strings.Compare(a.Name, b.Name) })

	return profiles, nil
}

// ClearToken forgets the session token of a profile but keeps its server settings.
func (s *Store) ClearToken(name string) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}

	profile, ok := cfg.Profiles[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	profile.AccessToken = ""
	profile.UpdatedAt = time.Now().UTC()
	cfg.Profiles[name] = profile

	return s.saveConfig(cfg)
}

// Delete removes a profile.
func (s *Store) Delete(name string) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}

	if _, ok := cfg.Profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	delete(cfg.Profiles, name)

	// Clear default if this was the default profile
	if cfg.DefaultProfile == name {
		cfg.DefaultProfile = ""
	}

	if err := s.saveConfig(cfg); err != nil {
		return err
	}

	log.Debug().Str("name", name).Msg("profile deleted")

	return nil
}

// SetDefault sets the default profile.
func (s *Store) SetDefault(name string) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}

	if _, ok := cfg.Profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	cfg.DefaultProfile = name

	return s.saveConfig(cfg)
}

// loadConfig reads the credentials file, returning an empty config if it doesn't exist.
func (s *Store) loadConfig() (*Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Version: 1, Profiles: make(map[string]Profile)}, nil
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}

	return &cfg, nil
}

// saveConfig writes the credentials file atomically.
func (s *Store) saveConfig(cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	// Write to temp file first
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	return nil
}
