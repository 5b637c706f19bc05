package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store/memory"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-session-secret-at-least-32-bytes")

func newTestManager(t *testing.T) (*SessionManager, *memory.SessionStore) {
	t.Helper()
	signer, err := NewTokenSigner(testSecret)
	require.NoError(t, err)

	sessions := memory.NewSessionStore()
	return NewSessionManager(sessions, signer, time.Hour), sessions
}

func testIdentity() *models.Identity {
	return &models.Identity{IdentityID: uuid.Must(uuid.NewV7()), Email: "alice@example.com"}
}

func TestNewTokenSigner_ShortSecret(t *testing.T) {
	_, err := NewTokenSigner([]byte("short"))
	require.Error(t, err)
}

func TestSessionManager_StartAndAuthenticate(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	identity := testIdentity()

	token, session, err := manager.Start(ctx, identity, SessionMetadata{UserAgent: "test", IPAddress: "127.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, identity.IdentityID, session.IdentityID())

	got, err := manager.Authenticate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, session.SessionID(), got.SessionID())
	require.Equal(t, "alice@example.com", got.Email())
}

func TestSessionManager_RevokedSessionIsRejected(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	token, session, err := manager.Start(ctx, testIdentity(), SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, manager.End(ctx, session))

	_, err = manager.Authenticate(ctx, token)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSessionManager_EndAll(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	identity := testIdentity()

	first, session, err := manager.Start(ctx, identity, SessionMetadata{})
	require.NoError(t, err)
	second, _, err := manager.Start(ctx, identity, SessionMetadata{})
	require.NoError(t, err)

	count, err := manager.EndAll(ctx, session)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	for _, token := range []string{first, second} {
		_, err = manager.Authenticate(ctx, token)
		require.ErrorIs(t, err, ErrUnauthenticated)
	}
}

func TestSessionManager_ForeignSignature(t *testing.T) {
	manager, sessions := newTestManager(t)
	ctx := context.Background()

	other, err := NewTokenSigner([]byte("another-secret-that-is-32-bytes-long!"))
	require.NoError(t, err)

	session := &models.Session{
		SessionID:  uuid.Must(uuid.NewV7()),
		IdentityID: uuid.Must(uuid.NewV7()),
		ExpiresAt:  time.Now().Add(time.Hour),
	}
	require.NoError(t, sessions.Create(ctx, session))

	token, err := other.Issue(SessionClaims{IdentityID: session.IdentityID, SessionID: session.SessionID, ExpiresAt: session.ExpiresAt})
	require.NoError(t, err)

	_, err = manager.Authenticate(ctx, token)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSessionAuthMiddleware(t *testing.T) {
	manager, _ := newTestManager(t)
	token, session, err := manager.Start(context.Background(), testIdentity(), SessionMetadata{})
	require.NoError(t, err)

	handler := SessionAuthMiddleware(manager, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := UserSessionFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, session.IdentityID(), got.IdentityID())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
