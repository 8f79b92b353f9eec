package rooms

import (
	"time"

	"github.com/codecoalition/collabd/internal/domain"
)

// screenShareResponse describes the room's active screen share, if any
type screenShareResponse struct {
	SharerConnectionID string `json:"sharerSocketId"` // Connection currently sharing
	SharerUsername     string `json:"sharerUsername"` // Username of the sharer
}

// roomResponse represents the live state of a collaboration room
type roomResponse struct {
	RoomID      string               `json:"roomId"`                // Room identifier chosen by the first member
	Users       []domain.SessionUser `json:"users"`                 // Connected members, admin first
	UserCount   int                  `json:"userCount"`             // Number of connected members
	ActiveShare *screenShareResponse `json:"activeShare,omitempty"` // Active screen share, omitted when nobody shares
}

// workspaceResponse represents the last persisted workspace snapshot of a room
type workspaceResponse struct {
	RoomID    string                `json:"roomId"`
	FileTree  *domain.WorkspaceNode `json:"fileTree"`
	UpdatedAt time.Time             `json:"updatedAt"` // Time of the last snapshot flush
}
