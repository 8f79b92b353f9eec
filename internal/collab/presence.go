package collab

import (
	"github.com/codecoalition/collabd/internal/domain"
	"github.com/codecoalition/collabd/internal/infrastructure/ws"
)

// PresenceTracker stores the latest cursor/typing/file values on the session
// user so they can be rebroadcast verbatim and served to late joiners. The
// server never interprets coordinates.
type PresenceTracker struct {
	registry *Registry
}

func NewPresenceTracker(registry *Registry) *PresenceTracker {
	return &PresenceTracker{registry: registry}
}

func (p *PresenceTracker) TypingStart(connectionID string, payload ws.CursorPayload) (domain.SessionUser, bool) {
	return p.registry.UpdateUser(connectionID, func(u *domain.SessionUser) {
		u.Typing = true
		if payload.FileID != "" {
			u.CurrentFileID = payload.FileID
		}
		u.CursorPosition = payload.CursorPosition
		u.SelectionStart = payload.SelectionStart
		u.SelectionEnd = payload.SelectionEnd
	})
}

func (p *PresenceTracker) TypingPause(connectionID string) (domain.SessionUser, bool) {
	return p.registry.UpdateUser(connectionID, func(u *domain.SessionUser) {
		u.Typing = false
	})
}

func (p *PresenceTracker) CursorMove(connectionID string, payload ws.CursorPayload) (domain.SessionUser, bool) {
	return p.registry.UpdateUser(connectionID, func(u *domain.SessionUser) {
		if payload.FileID != "" {
			u.CurrentFileID = payload.FileID
		}
		u.CursorPosition = payload.CursorPosition
		u.SelectionStart = payload.SelectionStart
		u.SelectionEnd = payload.SelectionEnd
	})
}

func (p *PresenceTracker) FileOpened(connectionID, fileID string) (domain.SessionUser, bool) {
	return p.registry.UpdateUser(connectionID, func(u *domain.SessionUser) {
		u.CurrentFileID = fileID
	})
}

func (p *PresenceTracker) SetStatus(connectionID string, status domain.ConnectionStatus) (domain.SessionUser, bool) {
	return p.registry.UpdateUser(connectionID, func(u *domain.SessionUser) {
		u.Status = status
	})
}
