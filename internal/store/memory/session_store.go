package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rubberband-os/rubberband/internal/models"
	"github.com/rubberband-os/rubberband/internal/store"
)

// SessionStore implements store.SessionStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type SessionStore struct {
	mu sync.RWMutex

	sessions           map[uuid.UUID]*models.Session // session_id -> Session
	sessionsByIdentity map[uuid.UUID][]uuid.UUID     // identity_id -> []session_id
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:           make(map[uuid.UUID]*models.Session),
		sessionsByIdentity: make(map[uuid.UUID][]uuid.UUID),
	}
}

// Create creates a new session in memory.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *session
	s.sessions[session.SessionID] = &clone

	s.sessionsByIdentity[session.IdentityID] = append(
		s.sessionsByIdentity[session.IdentityID],
		session.SessionID,
	)

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	if session.IsExpired() {
		return nil, store.ErrSessionExpired
	}

	clone := *session
	return &clone, nil
}

// UpdateLastUsed updates the last_used_at timestamp for a session.
func (s *SessionStore) UpdateLastUsed(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return store.ErrSessionNotFound
	}

	session.LastUsedAt = time.Now()
	return nil
}

// Delete deletes a session by ID.
func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return store.ErrSessionNotFound
	}

	s.removeLocked(session)
	return nil
}

// DeleteByIdentity deletes all sessions for an identity.
func (s *SessionStore) DeleteByIdentity(ctx context.Context, identityID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.sessionsByIdentity[identityID]
	for _, id := range ids {
		delete(s.sessions, id)
	}
	delete(s.sessionsByIdentity, identityID)

	return len(ids), nil
}

// DeleteExpired deletes all expired sessions.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, session := range s.sessions {
		if session.IsExpired() {
			s.removeLocked(session)
			count++
		}
	}

	return count, nil
}

func (s *SessionStore) removeLocked(session *models.Session) {
	delete(s.sessions, session.SessionID)

	ids := slices.DeleteFunc(s.sessionsByIdentity[session.IdentityID], func(id uuid.UUID) bool {
		return id == session.SessionID
	})
	if len(ids) == 0 {
		delete(s.sessionsByIdentity, session.IdentityID)
		return
	}
	s.sessionsByIdentity[session.IdentityID] = ids
}
