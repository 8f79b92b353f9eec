package collab

import (
	"sync"

	"github.com/codecoalition/collabd/internal/domain"
)

// ScreenShareState tracks at most one active share per room and validates
// signaling relay targets. Signaling payloads themselves are opaque; the
// server only forwards them.
type ScreenShareState struct {
	registry *Registry

	mu     sync.Mutex
	active map[string]*domain.ScreenShareSession // keyed by room id
}

func NewScreenShareState(registry *Registry) *ScreenShareState {
	return &ScreenShareState{
		registry: registry,
		active:   make(map[string]*domain.ScreenShareSession),
	}
}

// Start tags the caller as the room's active sharer.
func (s *ScreenShareState) Start(connectionID string) (*domain.ScreenShareSession, error) {
	user, ok := s.registry.FindUser(connectionID)
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.active[user.RoomID]; ok && existing.SharerConnectionID != connectionID {
		return nil, domain.ErrAlreadySharing
	}

	session := &domain.ScreenShareSession{
		SharerConnectionID: connectionID,
		SharerUsername:     user.Username,
	}
	s.active[user.RoomID] = session

	return session, nil
}

// Stop clears the room's share tag. Only the active sharer can stop it.
func (s *ScreenShareState) Stop(connectionID string) (*domain.ScreenShareSession, error) {
	roomID, ok := s.registry.RoomIDOf(connectionID)
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.active[roomID]
	if !ok || session.SharerConnectionID != connectionID {
		return nil, domain.ErrNotSharing
	}
	delete(s.active, roomID)

	return session, nil
}

// Active returns the room's current share, if any.
func (s *ScreenShareState) Active(roomID string) (*domain.ScreenShareSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.active[roomID]
	if !ok {
		return nil, false
	}
	copied := *session
	return &copied, true
}

// HandleDisconnect clears the share if the departing connection was the
// sharer. It reports the terminated session so the room can be told.
func (s *ScreenShareState) HandleDisconnect(connectionID, roomID string) (*domain.ScreenShareSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.active[roomID]
	if !ok || session.SharerConnectionID != connectionID {
		return nil, false
	}
	delete(s.active, roomID)

	return session, true
}

// ValidateTarget ensures a signal relay stays within the sender's room.
func (s *ScreenShareState) ValidateTarget(fromConnectionID, targetConnectionID string) error {
	fromRoom, ok := s.registry.RoomIDOf(fromConnectionID)
	if !ok {
		return domain.ErrUserNotFound
	}

	targetRoom, ok := s.registry.RoomIDOf(targetConnectionID)
	if !ok || targetRoom != fromRoom {
		return domain.ErrTargetNotInRoom
	}

	return nil
}

func (s *ScreenShareState) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
