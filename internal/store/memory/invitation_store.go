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

// InvitationStore implements store.InvitationStore using in-memory storage.
type InvitationStore struct {
	mu sync.RWMutex

	invitations map[uuid.UUID]*models.Invitation // invitation_id -> Invitation
	byToken     map[string]uuid.UUID             // token -> invitation_id
}

// NewInvitationStore creates a new in-memory invitation store.
func NewInvitationStore() *InvitationStore {
	return &InvitationStore{
		invitations: make(map[uuid.UUID]*models.Invitation),
		byToken:     make(map[string]uuid.UUID),
	}
}

func (s *InvitationStore) Create(ctx context.Context, invitation *models.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *invitation
	s.invitations[invitation.InvitationID] = &clone
	s.byToken[invitation.Token] = invitation.InvitationID

	return nil
}

func (s *InvitationStore) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byToken[token]
	if !exists {
		return nil, store.ErrInvitationNotFound
	}

	clone := *s.invitations[id]
	return &clone, nil
}

func (s *InvitationStore) MarkAccepted(ctx context.Context, invitationID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	invitation, exists := s.invitations[invitationID]
	if !exists {
		return store.ErrInvitationNotFound
	}
	if invitation.AcceptedAt != nil {
		return store.ErrInvitationAlreadyAccepted
	}

	invitation.AcceptedAt = &at

	return nil
}

func (s *InvitationStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*models.Invitation{}
	for _, invitation := range s.invitations {
		if invitation.OrgID == orgID {
			clone := *invitation
			result = append(result, &clone)
		}
	}
	slices.SortFunc(result, func(a, b *models.Invitation) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return result, nil
}

// deleteWhere removes invitations matching the predicate and returns how many were removed.
func (s *InvitationStore) deleteWhere(match func(*models.Invitation) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, invitation := range s.invitations {
		if match(invitation) {
			delete(s.byToken, invitation.Token)
			delete(s.invitations, id)
			count++
		}
	}

	return count
}
