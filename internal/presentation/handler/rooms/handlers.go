package rooms

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codecoalition/collabd/internal/collab"
	"github.com/codecoalition/collabd/internal/domain"
	"github.com/codecoalition/collabd/internal/infrastructure/json"
	"github.com/codecoalition/collabd/internal/infrastructure/logging"
	"github.com/codecoalition/collabd/internal/infrastructure/validate"
	"github.com/codecoalition/collabd/internal/infrastructure/ws"
)

type Handler struct {
	hub       *collab.Hub
	snapshots domain.SnapshotRepository
	logger    logging.Logger
}

func NewHandler(hub *collab.Hub, snapshots domain.SnapshotRepository, logger logging.Logger) *Handler {
	return &Handler{
		hub:       hub,
		snapshots: snapshots,
		logger:    logger,
	}
}

// ConnectHandler upgrades the request to a websocket and hands the connection
// to the hub. Everything after the upgrade happens over the socket.
func (h *Handler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Upgrade(w, r)
	if err != nil {
		h.logger.Warn(logging.Session, logging.ExternalService, "websocket upgrade failed",
			map[logging.ExtraKey]any{
				logging.ClientIp:     r.RemoteAddr,
				logging.ErrorMessage: err.Error(),
			})
		return
	}

	h.hub.HandleConnection(conn)
}

// GetRoomHandler returns the live roster of a room plus its active screen
// share, if one is running.
func (h *Handler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if err := validate.RoomID()(roomID); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	users := h.hub.Registry().ListUsers(roomID)
	if len(users) == 0 {
		json.WriteError(w, http.StatusNotFound, domain.ErrRoomNotFound, "Room not found")
		return
	}

	resp := roomResponse{
		RoomID:    roomID,
		Users:     users,
		UserCount: len(users),
	}

	if session, ok := h.hub.ScreenShare().Active(roomID); ok {
		resp.ActiveShare = &screenShareResponse{
			SharerConnectionID: session.SharerConnectionID,
			SharerUsername:     session.SharerUsername,
		}
	}

	json.Write(w, http.StatusOK, resp)
}

// GetWorkspaceHandler returns the last persisted workspace snapshot for a
// room. The snapshot trails the live tree by up to one flush interval.
func (h *Handler) GetWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if err := validate.RoomID()(roomID); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	if h.snapshots == nil {
		json.WriteError(w, http.StatusNotFound, domain.ErrSnapshotNotFound, "Snapshot persistence is disabled")
		return
	}

	snapshot, err := h.snapshots.Load(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			json.WriteError(w, http.StatusNotFound, err, "No workspace snapshot for this room")
			return
		}
		h.logger.Error(logging.Mongo, logging.SnapshotPersist, "failed to load workspace snapshot",
			map[logging.ExtraKey]any{
				logging.RoomID:       roomID,
				logging.ErrorMessage: err.Error(),
			})
		json.WriteInternalError(w, err)
		return
	}

	json.Write(w, http.StatusOK, workspaceResponse{
		RoomID:    snapshot.RoomID,
		FileTree:  snapshot.FileTree,
		UpdatedAt: snapshot.UpdatedAt,
	})
}
