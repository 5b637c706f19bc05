package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store"
)

// ErrUnauthenticated is returned when authentication fails.
var ErrUnauthenticated = errors.New("unauthenticated")

// DefaultSessionTTL is used when no TTL is configured.
const DefaultSessionTTL = 24 * time.Hour

// SessionMetadata is audit information recorded with a new session.
type SessionMetadata struct {
	UserAgent string
	IPAddress string
}

// SessionManager issues session tokens backed by rows in a SessionStore.
// A token is only accepted while its session row exists, so deleting rows revokes tokens.
type SessionManager struct {
	sessions store.SessionStore
	signer   *TokenSigner
	ttl      time.Duration
}

// NewSessionManager creates a session manager. A zero ttl uses DefaultSessionTTL.
func NewSessionManager(sessions store.SessionStore, signer *TokenSigner, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		sessions: sessions,
		signer:   signer,
		ttl:      ttl,
	}
}

// Start creates a session for an authenticated identity and returns its access token.
func (m *SessionManager) Start(ctx context.Context, identity *models.Identity, meta SessionMetadata) (string, UserSession, error) {
	sessionID, err := uuid.NewV7()
	if err != nil {
		return "", UserSession{}, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := time.Now()
	session := &models.Session{
		SessionID:  sessionID,
		IdentityID: identity.IdentityID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
		LastUsedAt: now,
		UserAgent:  meta.UserAgent,
		IPAddress:  meta.IPAddress,
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return "", UserSession{}, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := m.signer.Issue(SessionClaims{
		IdentityID: identity.IdentityID,
		SessionID:  sessionID,
		Email:      identity.Email,
		ExpiresAt:  session.ExpiresAt,
	})
	if err != nil {
		return "", UserSession{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	log.Debug().
		Str("session_id", sessionID.String()).
		Str("identity_id", identity.IdentityID.String()).
		Msg("Started session")

	return token, UserSession{identityID: identity.IdentityID, sessionID: sessionID, email: identity.Email}, nil
}

// Authenticate verifies the token signature and that its session is still live.
func (m *SessionManager) Authenticate(ctx context.Context, token string) (UserSession, error) {
	claims, err := m.signer.Verify(token)
	if err != nil {
		return UserSession{}, err
	}

	session, err := m.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) || errors.Is(err, store.ErrSessionExpired) {
			return UserSession{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return UserSession{}, fmt.Errorf("failed to load session: %w", err)
	}

	if session.IdentityID != claims.IdentityID {
		return UserSession{}, fmt.Errorf("%w: session does not belong to token subject", ErrUnauthenticated)
	}

	if err := m.sessions.UpdateLastUsed(ctx, session.SessionID); err != nil {
		log.Warn().Err(err).Str("session_id", session.SessionID.String()).Msg("Failed to update session last used")
	}

	return UserSession{identityID: claims.IdentityID, sessionID: claims.SessionID, email: claims.Email}, nil
}

// End deletes the caller's current session.
func (m *SessionManager) End(ctx context.Context, session UserSession) error {
	if err := m.sessions.Delete(ctx, session.SessionID()); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// EndAll deletes every session of the identity behind the given session.
func (m *SessionManager) EndAll(ctx context.Context, session UserSession) (int, error) {
	count, err := m.sessions.DeleteByIdentity(ctx, session.IdentityID())
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return count, nil
}
