package domain

import (
	"strings"

	"github.com/codecoalition/collabd/internal/infrastructure/validate"
)

type ConnectionStatus string

const (
	StatusOnline  ConnectionStatus = "online"
	StatusOffline ConnectionStatus = "offline"
)

// SessionUser is one connected member of a room. The registry owns the
// authoritative copy; everything handed out is a value copy.
type SessionUser struct {
	ConnectionID   string           `json:"socketId"`
	Username       string           `json:"username"`
	RoomID         string           `json:"roomId"`
	IsAdmin        bool             `json:"isAdmin"`
	Status         ConnectionStatus `json:"status"`
	Typing         bool             `json:"typing"`
	CurrentFileID  string           `json:"currentFile"`
	CursorPosition int              `json:"cursorPosition"`
	SelectionStart int              `json:"selectionStart"`
	SelectionEnd   int              `json:"selectionEnd"`
}

func NewSessionUser(connectionID, rawUsername, roomID string, isAdmin bool) (*SessionUser, error) {
	username := strings.TrimSpace(rawUsername)

	if err := validate.Username()(username); err != nil {
		return nil, err
	}
	if err := validate.RoomID()(roomID); err != nil {
		return nil, err
	}

	return &SessionUser{
		ConnectionID: connectionID,
		Username:     username,
		RoomID:       roomID,
		IsAdmin:      isAdmin,
		Status:       StatusOnline,
	}, nil
}
