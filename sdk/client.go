// Package sdk is the Go client for the collabd session layer. It keeps a
// single websocket to the server and layers the join state machine, the
// workspace replica, presence debouncing and screen-share peer management on
// top of it.
package sdk

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codecoalition/collabd/internal/domain"
	"github.com/codecoalition/collabd/internal/infrastructure/ws"
)

// JoinState is the client's position in the admission flow.
type JoinState string

const (
	StateInitial          JoinState = "INITIAL"
	StateAttemptingJoin   JoinState = "ATTEMPTING_JOIN"
	StatePendingApproval  JoinState = "PENDING_APPROVAL"
	StateJoined           JoinState = "JOINED"
	StateRejected         JoinState = "REJECTED"
	StateConnectionFailed JoinState = "CONNECTION_FAILED"
	StateDisconnected     JoinState = "DISCONNECTED"
)

// DefaultJoinTimeout bounds how long a join attempt waits for any server
// response before the attempt is declared failed.
const DefaultJoinTimeout = 9 * time.Second

// Handlers carries the application callbacks. Every field is optional; nil
// handlers are skipped. Callbacks run on the read goroutine, so they must not
// block.
type Handlers struct {
	OnStateChange       func(state JoinState)
	OnUsernameExists    func()
	OnJoinRejected      func(message string)
	OnApprovalRequested func(request domain.PendingJoinRequest)
	OnRequestResolved   func(requesterConnectionID string)
	OnUserJoined        func(user domain.SessionUser)
	OnUserUpdated       func(user domain.SessionUser)
	OnUserDisconnected  func(user domain.SessionUser)
	OnError             func(err error)
}

type Client struct {
	url         string
	dialer      *websocket.Dialer
	joinTimeout time.Duration

	handlers Handlers

	Workspace   *Workspace
	Presence    *Presence
	ScreenShare *ScreenShare

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu        sync.RWMutex
	state     JoinState
	sessionID string
	self      domain.SessionUser
	peers     map[string]domain.SessionUser
	username  string
	roomID    string
	mode      domain.JoinMode
	closed    bool

	joinTimer *time.Timer
}

type Option func(*Client)

// WithJoinTimeout overrides the join attempt timeout.
func WithJoinTimeout(d time.Duration) Option {
	return func(c *Client) { c.joinTimeout = d }
}

func WithHandlers(h Handlers) Option {
	return func(c *Client) { c.handlers = h }
}

// NewClient prepares a client for the given server base URL. No connection is
// made until Connect.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		url:         websocketURL(baseURL),
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		joinTimeout: DefaultJoinTimeout,
		state:       StateInitial,
		peers:       make(map[string]domain.SessionUser),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Workspace = newWorkspace(c)
	c.Presence = newPresence(c)
	c.ScreenShare = newScreenShare(c)

	return c
}

// Convert http(s) to ws(s)
func websocketURL(baseURL string) string {
	wsURL := strings.TrimSuffix(baseURL, "/")
	if after, ok := strings.CutPrefix(wsURL, "https://"); ok {
		wsURL = "wss://" + after
	} else if after, ok := strings.CutPrefix(wsURL, "http://"); ok {
		wsURL = "ws://" + after
	}
	return wsURL + "/ws"
}

// Connect dials the server and starts the read loop. It returns once the
// socket is established; admission is driven separately by Join.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	go c.readLoop(conn)

	// A reconnect mid-session resumes the previous join automatically.
	c.mu.RLock()
	resume := c.state == StateJoined || c.state == StateAttemptingJoin
	username, roomID, mode := c.username, c.roomID, c.mode
	c.mu.RUnlock()

	if resume {
		return c.Join(username, roomID, mode)
	}

	return nil
}

// Join starts an admission attempt. The outcome arrives through the
// OnStateChange handler; a server that stays silent past the join timeout
// yields StateConnectionFailed.
func (c *Client) Join(username, roomID string, mode domain.JoinMode) error {
	sessionID := uuid.NewString()

	c.mu.Lock()
	c.username = username
	c.roomID = roomID
	c.mode = mode
	c.sessionID = sessionID
	c.setStateLocked(StateAttemptingJoin)

	if c.joinTimer != nil {
		c.joinTimer.Stop()
	}
	c.joinTimer = time.AfterFunc(c.joinTimeout, func() {
		c.mu.Lock()
		stale := c.sessionID != sessionID || c.state != StateAttemptingJoin
		if !stale {
			c.setStateLocked(StateConnectionFailed)
		}
		c.mu.Unlock()
	})
	c.mu.Unlock()

	return c.send(ws.JoinRequest, ws.JoinRequestPayload{
		Username:  username,
		RoomID:    roomID,
		SessionID: sessionID,
		Mode:      mode,
	})
}

// Approve resolves a pending join request. Only the room admin's decision is
// honored by the server.
func (c *Client) Approve(requesterConnectionID string, approved bool) error {
	return c.send(ws.JoinApprovalDecision, ws.JoinApprovalDecisionPayload{
		RequesterConnectionID: requesterConnectionID,
		Approved:              approved,
	})
}

// Self returns the local member as the server sees it. Valid once joined.
func (c *Client) Self() domain.SessionUser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

func (c *Client) State() JoinState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Peers returns the other connected members of the room.
func (c *Client) Peers() []domain.SessionUser {
	c.mu.RLock()
	defer c.mu.RUnlock()

	peers := make([]domain.SessionUser, 0, len(c.peers))
	for _, u := range c.peers {
		peers = append(peers, u)
	}
	return peers
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.joinTimer != nil {
		c.joinTimer.Stop()
	}
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.Workspace.stop()
	c.Presence.stop()
	c.ScreenShare.teardown()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) send(event string, payload any) error {
	msg, err := ws.NewMessage(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			closed := c.closed
			if !closed {
				c.setStateLocked(StateDisconnected)
			}
			c.mu.Unlock()

			if !closed {
				c.emitError(fmt.Errorf("websocket read error: %w", err))
			}
			return
		}

		c.route(&msg)
	}
}

func (c *Client) route(msg *ws.Message) {
	switch msg.Event {
	case ws.JoinAccepted:
		c.handleJoinAccepted(msg)
	case ws.JoinPendingApproval:
		c.handleJoinPendingApproval()
	case ws.JoinRejected:
		c.handleJoinRejected(msg)
	case ws.UsernameExists:
		c.handleUsernameExists()
	case ws.JoinApprovalRequested:
		var payload ws.JoinApprovalRequestedPayload
		if msg.Decode(&payload) == nil && c.handlers.OnApprovalRequested != nil {
			c.handlers.OnApprovalRequested(payload.Request)
		}
	case ws.JoinRequestResolved:
		var payload ws.JoinRequestResolvedPayload
		if msg.Decode(&payload) == nil && c.handlers.OnRequestResolved != nil {
			c.handlers.OnRequestResolved(payload.RequesterConnectionID)
		}

	case ws.UserJoined:
		c.handleUserJoined(msg)
	case ws.UserUpdated, ws.TypingStart, ws.TypingPause, ws.CursorMove:
		c.handleUserUpdated(msg)
	case ws.UserDisconnected:
		c.handleUserDisconnected(msg)

	case ws.SyncFileStructure,
		ws.DirectoryCreated, ws.DirectoryUpdated, ws.DirectoryRenamed, ws.DirectoryDeleted,
		ws.FileCreated, ws.FileUpdated, ws.FileRenamed, ws.FileDeleted:
		c.Workspace.handleRemote(msg)

	case ws.ScreenShareStarted, ws.ScreenShareStopped, ws.ScreenShareStatus, ws.ScreenShareSignal:
		c.ScreenShare.handleRemote(msg)

	default:
		log.Printf("sdk: dropping unknown event %q", msg.Event)
	}
}

func (c *Client) handleJoinAccepted(msg *ws.Message) {
	var payload ws.JoinAcceptedPayload
	if err := msg.Decode(&payload); err != nil {
		c.emitError(err)
		return
	}

	c.mu.Lock()
	// An acceptance must answer the attempt we still hold; anything else,
	// including one without a session id, is from a superseded attempt and
	// must not flip the state.
	if payload.SessionID != c.sessionID {
		c.mu.Unlock()
		return
	}

	if c.joinTimer != nil {
		c.joinTimer.Stop()
	}

	c.self = payload.User
	c.peers = make(map[string]domain.SessionUser, len(payload.Users))
	for _, u := range payload.Users {
		if u.ConnectionID != payload.User.ConnectionID {
			c.peers[u.ConnectionID] = u
		}
	}
	c.setStateLocked(StateJoined)
	c.mu.Unlock()

	// Learn about an in-progress share without waiting for the next start.
	if err := c.send(ws.ScreenShareStatusRequest, nil); err != nil {
		c.emitError(err)
	}
}

func (c *Client) handleJoinPendingApproval() {
	c.mu.Lock()
	if c.joinTimer != nil {
		c.joinTimer.Stop()
	}
	if c.state == StateAttemptingJoin {
		c.setStateLocked(StatePendingApproval)
	}
	c.mu.Unlock()
}

func (c *Client) handleJoinRejected(msg *ws.Message) {
	var payload ws.JoinRejectedPayload
	_ = msg.Decode(&payload)

	c.mu.Lock()
	if c.joinTimer != nil {
		c.joinTimer.Stop()
	}
	c.setStateLocked(StateRejected)
	c.mu.Unlock()

	if c.handlers.OnJoinRejected != nil {
		c.handlers.OnJoinRejected(payload.Message)
	}
}

func (c *Client) handleUsernameExists() {
	c.mu.Lock()
	if c.joinTimer != nil {
		c.joinTimer.Stop()
	}
	// Back to the form: the caller picks another name and joins again.
	c.setStateLocked(StateInitial)
	c.mu.Unlock()

	if c.handlers.OnUsernameExists != nil {
		c.handlers.OnUsernameExists()
	}
}

func (c *Client) handleUserJoined(msg *ws.Message) {
	var payload ws.UserPayload
	if err := msg.Decode(&payload); err != nil {
		c.emitError(err)
		return
	}

	c.mu.Lock()
	c.peers[payload.User.ConnectionID] = payload.User
	c.mu.Unlock()

	// Existing members push their replica so the newcomer starts in sync.
	c.Workspace.pushSnapshotTo(payload.User.ConnectionID)
	c.ScreenShare.handlePeerJoined(payload.User.ConnectionID)

	if c.handlers.OnUserJoined != nil {
		c.handlers.OnUserJoined(payload.User)
	}
}

func (c *Client) handleUserUpdated(msg *ws.Message) {
	var payload ws.UserPayload
	if err := msg.Decode(&payload); err != nil {
		c.emitError(err)
		return
	}

	c.mu.Lock()
	c.peers[payload.User.ConnectionID] = payload.User
	c.mu.Unlock()

	if c.handlers.OnUserUpdated != nil {
		c.handlers.OnUserUpdated(payload.User)
	}
}

func (c *Client) handleUserDisconnected(msg *ws.Message) {
	var payload ws.UserPayload
	if err := msg.Decode(&payload); err != nil {
		c.emitError(err)
		return
	}

	c.mu.Lock()
	delete(c.peers, payload.User.ConnectionID)
	c.mu.Unlock()

	c.ScreenShare.handlePeerLeft(payload.User.ConnectionID)

	if c.handlers.OnUserDisconnected != nil {
		c.handlers.OnUserDisconnected(payload.User)
	}
}

// setStateLocked must be called with c.mu held.
func (c *Client) setStateLocked(state JoinState) {
	if c.state == state {
		return
	}
	c.state = state

	if c.handlers.OnStateChange != nil {
		// Handed off so a handler taking client methods cannot deadlock.
		go c.handlers.OnStateChange(state)
	}
}

func (c *Client) emitError(err error) {
	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
		return
	}
	log.Printf("sdk: %v", err)
}
