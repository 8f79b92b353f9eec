package ws

import (
	"encoding/json"

	"github.com/codecoalition/collabd/internal/domain"
)

// Message is the envelope every frame travels in. Data is decoded lazily by
// the component that owns the event, so the dispatcher stays a plain switch
// over Event.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage wraps a payload struct in an envelope. Payloads are our own
// types, so a marshal failure is a programming error and reported as such.
func NewMessage(event string, payload any) (*Message, error) {
	if payload == nil {
		return &Message{Event: event}, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{Event: event, Data: raw}, nil
}

func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Payload structs

type JoinRequestPayload struct {
	Username  string          `json:"username"`
	RoomID    string          `json:"roomId"`
	SessionID string          `json:"sessionId,omitempty"`
	Mode      domain.JoinMode `json:"mode,omitempty"`
}

type JoinAcceptedPayload struct {
	SessionID string               `json:"sessionId,omitempty"`
	User      domain.SessionUser   `json:"user"`
	Users     []domain.SessionUser `json:"users"`
}

type JoinPendingApprovalPayload struct {
	RequestID string `json:"requestId"`
}

type JoinApprovalRequestedPayload struct {
	Request domain.PendingJoinRequest `json:"request"`
}

type JoinApprovalDecisionPayload struct {
	RequesterConnectionID string `json:"requesterSocketId"`
	Approved              bool   `json:"approved"`
}

type JoinRejectedPayload struct {
	Message string `json:"message"`
}

type JoinRequestResolvedPayload struct {
	RequesterConnectionID string `json:"requesterSocketId"`
}

type UserPayload struct {
	User domain.SessionUser `json:"user"`
}

type ConnectionPayload struct {
	ConnectionID string `json:"socketId"`
}

type SyncFileStructurePayload struct {
	FileStructure *domain.WorkspaceNode   `json:"fileStructure"`
	OpenFiles     []*domain.WorkspaceNode `json:"openFiles"`
	ActiveFile    *domain.WorkspaceNode   `json:"activeFile,omitempty"`
	// TargetConnectionID routes the snapshot to the joining member; the
	// server strips it before relaying.
	TargetConnectionID string `json:"socketId,omitempty"`
}

type DirectoryCreatedPayload struct {
	ParentDirID  string                `json:"parentDirId"`
	NewDirectory *domain.WorkspaceNode `json:"newDirectory"`
}

type DirectoryUpdatedPayload struct {
	DirID    string                  `json:"dirId"`
	Children []*domain.WorkspaceNode `json:"children"`
}

type DirectoryRenamedPayload struct {
	DirID   string `json:"dirId"`
	NewName string `json:"newName"`
}

type DirectoryDeletedPayload struct {
	DirID string `json:"dirId"`
}

type FileCreatedPayload struct {
	ParentDirID string                `json:"parentDirId"`
	NewFile     *domain.WorkspaceNode `json:"newFile"`
}

type FileUpdatedPayload struct {
	FileID     string `json:"fileId"`
	NewContent string `json:"newContent"`
}

type FileRenamedPayload struct {
	FileID  string `json:"fileId"`
	NewName string `json:"newName"`
}

type FileDeletedPayload struct {
	FileID string `json:"fileId"`
}

type FileOpenedPayload struct {
	FileID string `json:"fileId"`
}

type WorkspaceSyncPayload struct {
	FileStructure *domain.WorkspaceNode `json:"fileStructure"`
}

type CursorPayload struct {
	FileID         string `json:"fileId,omitempty"`
	CursorPosition int    `json:"cursorPosition"`
	SelectionStart int    `json:"selectionStart"`
	SelectionEnd   int    `json:"selectionEnd"`
}

type ScreenShareStatePayload struct {
	SharerConnectionID string `json:"sharerSocketId,omitempty"`
	SharerUsername     string `json:"sharerUsername,omitempty"`
}

type ScreenShareSignalPayload struct {
	TargetConnectionID string          `json:"targetSocketId,omitempty"`
	FromConnectionID   string          `json:"fromSocketId,omitempty"`
	Payload            json.RawMessage `json:"payload"`
}
