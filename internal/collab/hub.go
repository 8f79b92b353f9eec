package collab

import (
	"context"
	"sync"

	"github.com/codecoalition/collabd/internal/domain"
	"github.com/codecoalition/collabd/internal/infrastructure/events"
	"github.com/codecoalition/collabd/internal/infrastructure/logging"
	"github.com/codecoalition/collabd/internal/infrastructure/metrics"
	"github.com/codecoalition/collabd/internal/infrastructure/validate"
	"github.com/codecoalition/collabd/internal/infrastructure/ws"
	"github.com/gorilla/websocket"
)

// Hub multiplexes every collaboration component over one connection per
// client. It owns the connection-id to client table; all room state lives in
// the components. Dispatch is a plain switch so unhandled events are visible
// at a glance.
type Hub struct {
	registry    *Registry
	admission   *AdmissionController
	workspace   *WorkspaceKeeper
	presence    *PresenceTracker
	screenShare *ScreenShareState
	publisher   *events.RoomPublisher
	logger      logging.Logger
	metrics     *metrics.Collectors

	mu      sync.RWMutex
	clients map[string]*ws.Client
}

type HubOptions struct {
	Registry    *Registry
	Admission   *AdmissionController
	Workspace   *WorkspaceKeeper
	Presence    *PresenceTracker
	ScreenShare *ScreenShareState
	Publisher   *events.RoomPublisher
	Logger      logging.Logger
	Metrics     *metrics.Collectors
}

func NewHub(opts HubOptions) *Hub {
	return &Hub{
		registry:    opts.Registry,
		admission:   opts.Admission,
		workspace:   opts.Workspace,
		presence:    opts.Presence,
		screenShare: opts.ScreenShare,
		publisher:   opts.Publisher,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		clients:     make(map[string]*ws.Client),
	}
}

func (h *Hub) Registry() *Registry             { return h.registry }
func (h *Hub) Admission() *AdmissionController { return h.admission }
func (h *Hub) ScreenShare() *ScreenShareState  { return h.screenShare }

// HandleConnection adopts an upgraded websocket connection and starts its
// read and write pumps. It returns immediately.
func (h *Hub) HandleConnection(conn *websocket.Conn) *ws.Client {
	client := ws.NewClient(conn)

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	go client.WritePump()
	go client.ReadPump(h.dispatch, h.handleDisconnect)

	return client
}

func (h *Hub) dispatch(client *ws.Client, msg *ws.Message) {
	defer func() {
		// A malformed message from one client must never take down the
		// process or anyone else's room.
		if r := recover(); r != nil {
			h.logger.Error(logging.Session, logging.Relay, "panic in message handler",
				map[logging.ExtraKey]any{
					logging.ConnectionID: client.ID,
					logging.EventName:    msg.Event,
					logging.ErrorMessage: r,
				})
		}
	}()

	switch msg.Event {
	case ws.JoinRequest:
		h.handleJoinRequest(client, msg)
	case ws.JoinApprovalDecision:
		h.handleJoinApprovalDecision(client, msg)

	case ws.SyncFileStructure:
		h.handleSyncFileStructure(client, msg)
	case ws.WorkspaceSync:
		h.handleWorkspaceSync(client, msg)
	case ws.DirectoryCreated, ws.DirectoryUpdated, ws.DirectoryRenamed, ws.DirectoryDeleted,
		ws.FileCreated, ws.FileUpdated, ws.FileRenamed, ws.FileDeleted:
		h.relayToRoom(client, msg)

	case ws.FileOpened:
		h.handleFileOpened(client, msg)
	case ws.TypingStart:
		h.handleTypingStart(client, msg)
	case ws.TypingPause:
		h.handleTypingPause(client)
	case ws.CursorMove:
		h.handleCursorMove(client, msg)
	case ws.UserOnline:
		h.handleStatusChange(client, domain.StatusOnline, ws.UserOnline)
	case ws.UserOffline:
		h.handleStatusChange(client, domain.StatusOffline, ws.UserOffline)

	case ws.ScreenShareStart:
		h.handleScreenShareStart(client)
	case ws.ScreenShareStop:
		h.handleScreenShareStop(client)
	case ws.ScreenShareStatusRequest:
		h.handleScreenShareStatusRequest(client)
	case ws.ScreenShareSignal:
		h.handleScreenShareSignal(client, msg)

	default:
		h.logger.Debug(logging.Session, logging.Relay, "ignoring unknown event",
			map[logging.ExtraKey]any{
				logging.ConnectionID: client.ID,
				logging.EventName:    msg.Event,
			})
	}
}

// ---- admission ----

func (h *Hub) handleJoinRequest(client *ws.Client, msg *ws.Message) {
	var payload ws.JoinRequestPayload
	if err := msg.Decode(&payload); err != nil {
		h.sendEvent(client, ws.JoinRejected, ws.JoinRejectedPayload{Message: "malformed join request"})
		return
	}

	if err := validate.Username()(payload.Username); err != nil {
		h.sendEvent(client, ws.JoinRejected, ws.JoinRejectedPayload{Message: err.Error()})
		return
	}
	if err := validate.RoomID()(payload.RoomID); err != nil {
		h.sendEvent(client, ws.JoinRejected, ws.JoinRejectedPayload{Message: err.Error()})
		return
	}

	outcome, user, request, err := h.admission.RequestJoin(client.ID, payload.Username, payload.RoomID, payload.SessionID, payload.Mode)
	if err != nil {
		h.sendEvent(client, ws.JoinRejected, ws.JoinRejectedPayload{Message: err.Error()})
		return
	}

	switch outcome {
	case AdmissionUsernameTaken:
		h.metrics.AdmissionOutcomes.WithLabelValues("username_taken").Inc()
		h.sendEvent(client, ws.UsernameExists, nil)

	case AdmissionAccepted:
		h.metrics.AdmissionOutcomes.WithLabelValues("accepted").Inc()
		h.admit(client.ID, payload.SessionID, *user)

	case AdmissionPending:
		h.metrics.AdmissionOutcomes.WithLabelValues("pending").Inc()
		h.metrics.PendingRequests.Set(float64(h.admission.PendingCount()))

		h.sendEvent(client, ws.JoinPendingApproval, ws.JoinPendingApprovalPayload{RequestID: request.RequestID})

		if admin, ok := h.registry.AdminOf(request.RoomID); ok {
			h.sendEventTo(admin.ConnectionID, ws.JoinApprovalRequested, ws.JoinApprovalRequestedPayload{Request: *request})
		}

		h.logger.Info(logging.Session, logging.Admission, "join request pending approval",
			map[logging.ExtraKey]any{
				logging.ConnectionID: client.ID,
				logging.RoomID:       request.RoomID,
				logging.Username:     request.Username,
			})
	}
}

func (h *Hub) handleJoinApprovalDecision(client *ws.Client, msg *ws.Message) {
	var payload ws.JoinApprovalDecisionPayload
	if err := msg.Decode(&payload); err != nil {
		return
	}

	request, user, err := h.admission.Resolve(client.ID, payload.RequesterConnectionID, payload.Approved)
	if err != nil {
		h.logger.Warn(logging.Session, logging.Admission, "join decision not applied",
			map[logging.ExtraKey]any{
				logging.ConnectionID: client.ID,
				logging.ErrorMessage: err.Error(),
			})
		if err == domain.ErrUsernameTaken {
			h.sendEventTo(payload.RequesterConnectionID, ws.UsernameExists, nil)
		}
		return
	}

	h.metrics.PendingRequests.Set(float64(h.admission.PendingCount()))
	h.sendEventTo(client.ID, ws.JoinRequestResolved, ws.JoinRequestResolvedPayload{
		RequesterConnectionID: request.RequesterConnectionID,
	})

	if user != nil {
		h.metrics.AdmissionOutcomes.WithLabelValues("approved").Inc()
		h.admit(request.RequesterConnectionID, request.SessionID, *user)
		return
	}

	h.metrics.AdmissionOutcomes.WithLabelValues("rejected").Inc()
	h.sendEventTo(request.RequesterConnectionID, ws.JoinRejected, ws.JoinRejectedPayload{
		Message: "Your request to join was rejected by the room admin",
	})
}

// admit completes an accepted admission: peers learn about the new member,
// the member gets the roster.
func (h *Hub) admit(connectionID, sessionID string, user domain.SessionUser) {
	h.broadcastToRoom(user.RoomID, connectionID, mustMessage(ws.UserJoined, ws.UserPayload{User: user}))

	users := h.registry.ListUsers(user.RoomID)
	h.sendEventTo(connectionID, ws.JoinAccepted, ws.JoinAcceptedPayload{
		SessionID: sessionID,
		User:      user,
		Users:     users,
	})

	h.updateGauges()
	if h.publisher != nil {
		opened := len(users) == 1
		go func() {
			ctx := context.Background()
			if opened {
				h.logPublishErr(h.publisher.PublishRoomOpened(ctx, user))
			}
			h.logPublishErr(h.publisher.PublishMemberJoined(ctx, user))
		}()
	}

	h.logger.Info(logging.Session, logging.Admission, "user joined room",
		map[logging.ExtraKey]any{
			logging.ConnectionID: connectionID,
			logging.RoomID:       user.RoomID,
			logging.Username:     user.Username,
		})
}

// ---- workspace ----

func (h *Hub) handleSyncFileStructure(client *ws.Client, msg *ws.Message) {
	var payload ws.SyncFileStructurePayload
	if err := msg.Decode(&payload); err != nil {
		return
	}

	target := payload.TargetConnectionID
	if target == "" {
		return
	}

	// The snapshot is point-to-point: only the joining member receives it.
	if !h.registry.SameRoom(client.ID, target) {
		return
	}

	payload.TargetConnectionID = ""
	h.sendEventTo(target, ws.SyncFileStructure, payload)
	h.metrics.MessagesRelayed.WithLabelValues(ws.SyncFileStructure).Inc()
}

func (h *Hub) handleWorkspaceSync(client *ws.Client, msg *ws.Message) {
	var payload ws.WorkspaceSyncPayload
	if err := msg.Decode(&payload); err != nil {
		return
	}

	roomID, ok := h.registry.RoomIDOf(client.ID)
	if !ok {
		return
	}

	h.workspace.HandleSync(roomID, payload.FileStructure)
}

// relayToRoom forwards a tree mutation untouched to the rest of the sender's
// room. The server is not authoritative for the tree.
func (h *Hub) relayToRoom(client *ws.Client, msg *ws.Message) {
	roomID, ok := h.registry.RoomIDOf(client.ID)
	if !ok {
		return
	}

	h.broadcastToRoom(roomID, client.ID, msg)
	h.metrics.MessagesRelayed.WithLabelValues(msg.Event).Inc()
}

// ---- presence ----

func (h *Hub) handleFileOpened(client *ws.Client, msg *ws.Message) {
	var payload ws.FileOpenedPayload
	if err := msg.Decode(&payload); err != nil {
		return
	}

	user, ok := h.presence.FileOpened(client.ID, payload.FileID)
	if !ok {
		return
	}
	h.broadcastToRoom(user.RoomID, client.ID, mustMessage(ws.UserUpdated, ws.UserPayload{User: user}))
}

func (h *Hub) handleTypingStart(client *ws.Client, msg *ws.Message) {
	var payload ws.CursorPayload
	if err := msg.Decode(&payload); err != nil {
		return
	}

	user, ok := h.presence.TypingStart(client.ID, payload)
	if !ok {
		return
	}
	h.broadcastToRoom(user.RoomID, client.ID, mustMessage(ws.TypingStart, ws.UserPayload{User: user}))
	h.metrics.MessagesRelayed.WithLabelValues(ws.TypingStart).Inc()
}

func (h *Hub) handleTypingPause(client *ws.Client) {
	user, ok := h.presence.TypingPause(client.ID)
	if !ok {
		return
	}
	h.broadcastToRoom(user.RoomID, client.ID, mustMessage(ws.TypingPause, ws.UserPayload{User: user}))
	h.metrics.MessagesRelayed.WithLabelValues(ws.TypingPause).Inc()
}

func (h *Hub) handleCursorMove(client *ws.Client, msg *ws.Message) {
	var payload ws.CursorPayload
	if err := msg.Decode(&payload); err != nil {
		return
	}

	user, ok := h.presence.CursorMove(client.ID, payload)
	if !ok {
		return
	}
	h.broadcastToRoom(user.RoomID, client.ID, mustMessage(ws.CursorMove, ws.UserPayload{User: user}))
	h.metrics.MessagesRelayed.WithLabelValues(ws.CursorMove).Inc()
}

func (h *Hub) handleStatusChange(client *ws.Client, status domain.ConnectionStatus, event string) {
	user, ok := h.presence.SetStatus(client.ID, status)
	if !ok {
		return
	}
	h.broadcastToRoom(user.RoomID, client.ID, mustMessage(event, ws.ConnectionPayload{ConnectionID: client.ID}))
}

// ---- screen share ----

func (h *Hub) handleScreenShareStart(client *ws.Client) {
	session, err := h.screenShare.Start(client.ID)
	if err != nil {
		h.logger.Warn(logging.ScreenShare, logging.Signaling, "screen share start refused",
			map[logging.ExtraKey]any{
				logging.ConnectionID: client.ID,
				logging.ErrorMessage: err.Error(),
			})
		// Answer with the room's actual share state so the caller can
		// reconcile instead of believing its own start stuck.
		if roomID, ok := h.registry.RoomIDOf(client.ID); ok {
			var payload ws.ScreenShareStatePayload
			if active, ok := h.screenShare.Active(roomID); ok {
				payload.SharerConnectionID = active.SharerConnectionID
				payload.SharerUsername = active.SharerUsername
			}
			h.sendEvent(client, ws.ScreenShareStatus, payload)
		}
		return
	}

	roomID, _ := h.registry.RoomIDOf(client.ID)
	h.broadcastToRoom(roomID, client.ID, mustMessage(ws.ScreenShareStarted, ws.ScreenShareStatePayload{
		SharerConnectionID: session.SharerConnectionID,
		SharerUsername:     session.SharerUsername,
	}))
	h.updateGauges()
}

func (h *Hub) handleScreenShareStop(client *ws.Client) {
	session, err := h.screenShare.Stop(client.ID)
	if err != nil {
		return
	}

	roomID, _ := h.registry.RoomIDOf(client.ID)
	h.broadcastToRoom(roomID, client.ID, mustMessage(ws.ScreenShareStopped, ws.ScreenShareStatePayload{
		SharerConnectionID: session.SharerConnectionID,
		SharerUsername:     session.SharerUsername,
	}))
	h.updateGauges()
}

func (h *Hub) handleScreenShareStatusRequest(client *ws.Client) {
	roomID, ok := h.registry.RoomIDOf(client.ID)
	if !ok {
		return
	}

	var payload ws.ScreenShareStatePayload
	if session, ok := h.screenShare.Active(roomID); ok {
		payload.SharerConnectionID = session.SharerConnectionID
		payload.SharerUsername = session.SharerUsername
	}
	h.sendEvent(client, ws.ScreenShareStatus, payload)
}

func (h *Hub) handleScreenShareSignal(client *ws.Client, msg *ws.Message) {
	var payload ws.ScreenShareSignalPayload
	if err := msg.Decode(&payload); err != nil {
		return
	}

	if err := h.screenShare.ValidateTarget(client.ID, payload.TargetConnectionID); err != nil {
		h.logger.Warn(logging.ScreenShare, logging.Signaling, "dropping signal to invalid target",
			map[logging.ExtraKey]any{
				logging.ConnectionID: client.ID,
				logging.ErrorMessage: err.Error(),
			})
		return
	}

	target := payload.TargetConnectionID
	payload.TargetConnectionID = ""
	payload.FromConnectionID = client.ID
	h.sendEventTo(target, ws.ScreenShareSignal, payload)
	h.metrics.MessagesRelayed.WithLabelValues(ws.ScreenShareSignal).Inc()
}

// ---- disconnect ----

func (h *Hub) handleDisconnect(client *ws.Client) {
	h.mu.Lock()
	delete(h.clients, client.ID)
	h.mu.Unlock()

	// A requester that never got admitted may still hold a pending request.
	if request, ok := h.admission.CancelByConnection(client.ID); ok {
		h.metrics.PendingRequests.Set(float64(h.admission.PendingCount()))
		if admin, found := h.registry.AdminOf(request.RoomID); found {
			h.sendEventTo(admin.ConnectionID, ws.JoinRequestResolved, ws.JoinRequestResolvedPayload{
				RequesterConnectionID: request.RequesterConnectionID,
			})
		}
	}

	user, wasMember, vacant := h.registry.RemoveUser(client.ID)
	if !wasMember {
		return
	}

	if session, stopped := h.screenShare.HandleDisconnect(client.ID, user.RoomID); stopped {
		h.broadcastToRoom(user.RoomID, client.ID, mustMessage(ws.ScreenShareStopped, ws.ScreenShareStatePayload{
			SharerConnectionID: session.SharerConnectionID,
			SharerUsername:     session.SharerUsername,
		}))
	}

	h.broadcastToRoom(user.RoomID, client.ID, mustMessage(ws.UserDisconnected, ws.UserPayload{User: user}))

	if vacant {
		h.workspace.DropRoom(user.RoomID)
	}

	h.updateGauges()
	if h.publisher != nil {
		go func() {
			ctx := context.Background()
			h.logPublishErr(h.publisher.PublishMemberLeft(ctx, user))
			if vacant {
				h.logPublishErr(h.publisher.PublishRoomClosed(ctx, user.RoomID))
			}
		}()
	}

	h.logger.Info(logging.Session, logging.Disconnect, "user disconnected",
		map[logging.ExtraKey]any{
			logging.ConnectionID: client.ID,
			logging.RoomID:       user.RoomID,
			logging.Username:     user.Username,
		})
}

// ---- plumbing ----

func (h *Hub) sendEvent(client *ws.Client, event string, payload any) {
	msg, err := ws.NewMessage(event, payload)
	if err != nil {
		h.logger.Errorf("failed to encode %s: %v", event, err)
		return
	}
	client.Enqueue(msg)
}

func (h *Hub) sendEventTo(connectionID, event string, payload any) {
	h.mu.RLock()
	client, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.sendEvent(client, event, payload)
}

// broadcastToRoom delivers to every room member except the excluded
// connection. Members whose outbox is full are skipped, not waited on.
func (h *Hub) broadcastToRoom(roomID, excludeConnectionID string, msg *ws.Message) {
	for _, user := range h.registry.ListUsers(roomID) {
		if user.ConnectionID == excludeConnectionID {
			continue
		}

		h.mu.RLock()
		client, ok := h.clients[user.ConnectionID]
		h.mu.RUnlock()
		if !ok {
			continue
		}

		if !client.Enqueue(msg) {
			h.logger.Warn(logging.Session, logging.Relay, "dropping message for slow client",
				map[logging.ExtraKey]any{
					logging.ConnectionID: user.ConnectionID,
					logging.EventName:    msg.Event,
				})
		}
	}
}

func (h *Hub) logPublishErr(err error) {
	if err != nil {
		h.logger.Error(logging.RabbitMQ, logging.ExternalService, "failed to publish session event",
			map[logging.ExtraKey]any{logging.ErrorMessage: err.Error()})
	}
}

func (h *Hub) updateGauges() {
	h.metrics.ConnectedUsers.Set(float64(h.registry.UserCount()))
	h.metrics.ActiveRooms.Set(float64(h.registry.RoomCount()))
	h.metrics.ActiveShares.Set(float64(h.screenShare.ActiveCount()))
}

func mustMessage(event string, payload any) *ws.Message {
	msg, err := ws.NewMessage(event, payload)
	if err != nil {
		panic(err)
	}
	return msg
}
