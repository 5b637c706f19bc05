// Package identity implements the identity service: sign-up and sign-in of
// identities for end users, and the administrative list/delete primitives
// reserved for holders of the service-role key.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/rubberband-os/rubberband/internal/auth"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store"
)

// ErrInvalidEmail is returned when the email address cannot be parsed.
var ErrInvalidEmail = errors.New("invalid email address")

var validate = validator.New()

// SignInResult is returned by a successful SignIn.
type SignInResult struct {
	Identity *models.Identity
	Session  auth.UserSession
	Token    string
}

// Service handles end-user identity operations.
type Service struct {
	identities store.IdentityStore
	sessions   *auth.SessionManager
}

// NewService creates an identity service.
func NewService(identities store.IdentityStore, sessions *auth.SessionManager) *Service {
	return &Service{
		identities: identities,
		sessions:   sessions,
	}
}

// NormalizeEmail lower-cases and validates an email address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// SignUp creates a new identity with a hashed password.
// Returns store.ErrIdentityAlreadyExists if the email is taken.
func (s *Service) SignUp(ctx context.Context, email, password string) (*models.Identity, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	identityID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity id: %w", err)
	}

	now := time.Now()
	identity := &models.Identity{
		IdentityID:   identityID,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, err
	}

	log.Info().
		Str("identity_id", identityID.String()).
		Msg("Identity signed up")

	return identity, nil
}

// SignIn verifies credentials and starts a session.
// Unknown emails and wrong passwords both return auth.ErrInvalidCredentials.
func (s *Service) SignIn(ctx context.Context, email, password string, meta auth.SessionMetadata) (*SignInResult, error) {
	identity, err := s.identities.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	if err := auth.CheckPassword(identity.PasswordHash, password); err != nil {
		log.Debug().Str("identity_id", identity.IdentityID.String()).Msg("Sign in rejected: wrong password")
		return nil, err
	}

	token, session, err := s.sessions.Start(ctx, identity, meta)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.identities.UpdateLastLogin(ctx, identity.IdentityID, now); err != nil {
		log.Warn().Err(err).Str("identity_id", identity.IdentityID.String()).Msg("Failed to record last login")
	} else {
		identity.LastLoginAt = &now
	}

	return &SignInResult{Identity: identity, Session: session, Token: token}, nil
}

// Get returns the identity behind a session.
func (s *Service) Get(ctx context.Context, session auth.UserSession) (*models.Identity, error) {
	return s.identities.Get(ctx, session.IdentityID())
}
