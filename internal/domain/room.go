package domain

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrUsernameTaken     = errors.New("username already taken in this room")
	ErrAlreadyConnected  = errors.New("connection already registered")
	ErrNotAdmin          = errors.New("only the room admin can do this")
	ErrNoPendingRequest  = errors.New("no pending join request for this connection")
	ErrAlreadySharing    = errors.New("another member is already sharing in this room")
	ErrNotSharing        = errors.New("no active screen share in this room")
	ErrTargetNotInRoom   = errors.New("target connection is not in this room")
)

// JoinMode distinguishes creating a room (immediate admin admission) from
// joining an existing one (subject to the approval gate).
type JoinMode string

const (
	JoinModeCreate JoinMode = "create"
	JoinModeJoin   JoinMode = "join"
)

// PendingJoinRequest exists between a non-admin join attempt and the admin's
// decision. It is removed on approve, reject, or requester disconnect.
type PendingJoinRequest struct {
	RequestID             string `json:"requestId"`
	RequesterConnectionID string `json:"requesterSocketId"`
	Username              string `json:"username"`
	RoomID                string `json:"roomId"`
	// SessionID is the requester's join attempt id, echoed back on the
	// eventual acceptance so the client can discard answers to attempts it
	// has already abandoned.
	SessionID string `json:"sessionId,omitempty"`
}

func NewPendingJoinRequest(requesterConnectionID, username, roomID, sessionID string) *PendingJoinRequest {
	return &PendingJoinRequest{
		RequestID:             uuid.NewString(),
		RequesterConnectionID: requesterConnectionID,
		Username:              username,
		RoomID:                roomID,
		SessionID:             sessionID,
	}
}

// ScreenShareSession marks the single active sharer of a room.
type ScreenShareSession struct {
	SharerConnectionID string `json:"sharerSocketId"`
	SharerUsername     string `json:"sharerUsername"`
}
