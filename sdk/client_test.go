package sdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecoalition/collabd/internal/domain"
	"github.com/codecoalition/collabd/internal/infrastructure/ws"
)

// fakeServer plays the server's half of the websocket conversation: it
// records every frame the client sends and lets a test push scripted frames
// back down.
type fakeServer struct {
	t    *testing.T
	srv  *httptest.Server
	recv chan ws.Message

	mu   sync.Mutex
	conn *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	f := &fakeServer{t: t, recv: make(chan ws.Message, 256)}
	upgrader := websocket.Upgrader{}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()

		for {
			var msg ws.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			f.recv <- msg
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) push(event string, payload any) {
	f.t.Helper()

	msg, err := ws.NewMessage(event, payload)
	require.NoError(f.t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotNil(f.t, f.conn, "no client connected yet")
	require.NoError(f.t, f.conn.WriteJSON(msg))
}

// next waits for the next frame of the given event, skipping everything else
// (autosave and presence frames arrive interleaved).
func (f *fakeServer) next(event string) *ws.Message {
	f.t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-f.recv:
			if msg.Event == event {
				return &msg
			}
		case <-deadline:
			f.t.Fatalf("timed out waiting for %q frame", event)
		}
	}
}

func (f *fakeServer) expectNone(event string, wait time.Duration) {
	f.t.Helper()

	deadline := time.After(wait)
	for {
		select {
		case msg := <-f.recv:
			if msg.Event == event {
				f.t.Fatalf("unexpected %q frame", event)
			}
		case <-deadline:
			return
		}
	}
}

func newConnectedClient(t *testing.T, f *fakeServer, opts ...Option) *Client {
	t.Helper()

	client := NewClient(f.srv.URL, opts...)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { client.Close() })
	return client
}

// acceptJoin drives a client through a successful admission and returns the
// identity the server assigned.
func acceptJoin(t *testing.T, f *fakeServer, client *Client, connectionID, username string) domain.SessionUser {
	t.Helper()

	require.NoError(t, client.Join(username, "room-1", domain.JoinModeCreate))

	var joinReq ws.JoinRequestPayload
	require.NoError(t, f.next(ws.JoinRequest).Decode(&joinReq))

	self := domain.SessionUser{
		ConnectionID: connectionID,
		Username:     username,
		RoomID:       "room-1",
		IsAdmin:      true,
		Status:       domain.StatusOnline,
	}
	f.push(ws.JoinAccepted, ws.JoinAcceptedPayload{
		SessionID: joinReq.SessionID,
		User:      self,
		Users:     []domain.SessionUser{self},
	})

	require.Eventually(t, func() bool {
		return client.State() == StateJoined
	}, 2*time.Second, 10*time.Millisecond)
	return self
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws"},
		{"https://collab.example.com", "wss://collab.example.com/ws"},
		{"http://localhost:8080/", "ws://localhost:8080/ws"},
		{"ws://localhost:8080", "ws://localhost:8080/ws"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, websocketURL(tc.base))
	}
}

func TestClientJoinAccepted(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)

	require.Equal(t, StateInitial, client.State())
	require.NoError(t, client.Join("alice", "room-1", domain.JoinModeCreate))

	var joinReq ws.JoinRequestPayload
	require.NoError(t, f.next(ws.JoinRequest).Decode(&joinReq))
	assert.Equal(t, "alice", joinReq.Username)
	assert.Equal(t, "room-1", joinReq.RoomID)
	assert.Equal(t, domain.JoinModeCreate, joinReq.Mode)
	assert.NotEmpty(t, joinReq.SessionID)

	self := domain.SessionUser{ConnectionID: "s1", Username: "alice", RoomID: "room-1", IsAdmin: true}
	peer := domain.SessionUser{ConnectionID: "s2", Username: "bob", RoomID: "room-1"}
	f.push(ws.JoinAccepted, ws.JoinAcceptedPayload{
		SessionID: joinReq.SessionID,
		User:      self,
		Users:     []domain.SessionUser{self, peer},
	})

	require.Eventually(t, func() bool {
		return client.State() == StateJoined
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "s1", client.Self().ConnectionID)
	peers := client.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "bob", peers[0].Username)

	// Joining asks the server about any share already running.
	f.next(ws.ScreenShareStatusRequest)
}

func TestClientIgnoresStaleAcceptance(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)

	require.NoError(t, client.Join("alice", "room-1", domain.JoinModeCreate))
	f.next(ws.JoinRequest)

	f.push(ws.JoinAccepted, ws.JoinAcceptedPayload{
		SessionID: "superseded-attempt",
		User:      domain.SessionUser{ConnectionID: "s1", Username: "alice"},
	})

	// An acceptance with no session id at all is just as stale.
	f.push(ws.JoinAccepted, ws.JoinAcceptedPayload{
		User: domain.SessionUser{ConnectionID: "s1", Username: "alice"},
	})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateAttemptingJoin, client.State())
}

func TestClientPendingThenRejected(t *testing.T) {
	f := newFakeServer(t)

	rejections := make(chan string, 1)
	client := newConnectedClient(t, f, WithHandlers(Handlers{
		OnJoinRejected: func(message string) { rejections <- message },
	}))

	require.NoError(t, client.Join("bob", "room-1", domain.JoinModeJoin))
	f.next(ws.JoinRequest)

	f.push(ws.JoinPendingApproval, ws.JoinPendingApprovalPayload{RequestID: "req-1"})
	require.Eventually(t, func() bool {
		return client.State() == StatePendingApproval
	}, 2*time.Second, 10*time.Millisecond)

	f.push(ws.JoinRejected, ws.JoinRejectedPayload{Message: "no room for you"})

	select {
	case message := <-rejections:
		assert.Equal(t, "no room for you", message)
	case <-time.After(2 * time.Second):
		t.Fatal("rejection handler never fired")
	}
	assert.Equal(t, StateRejected, client.State())
}

func TestClientUsernameExists(t *testing.T) {
	f := newFakeServer(t)

	taken := make(chan struct{}, 1)
	client := newConnectedClient(t, f, WithHandlers(Handlers{
		OnUsernameExists: func() { taken <- struct{}{} },
	}))

	require.NoError(t, client.Join("alice", "room-1", domain.JoinModeJoin))
	f.next(ws.JoinRequest)
	f.push(ws.UsernameExists, nil)

	select {
	case <-taken:
	case <-time.After(2 * time.Second):
		t.Fatal("username-exists handler never fired")
	}
	assert.Equal(t, StateInitial, client.State())
}

func TestClientJoinTimeout(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f, WithJoinTimeout(50*time.Millisecond))

	require.NoError(t, client.Join("alice", "room-1", domain.JoinModeCreate))
	f.next(ws.JoinRequest)

	// The server stays silent; the attempt times out on its own.
	require.Eventually(t, func() bool {
		return client.State() == StateConnectionFailed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientPeerLifecycle(t *testing.T) {
	f := newFakeServer(t)

	joins := make(chan domain.SessionUser, 1)
	leaves := make(chan domain.SessionUser, 1)
	client := newConnectedClient(t, f, WithHandlers(Handlers{
		OnUserJoined:       func(u domain.SessionUser) { joins <- u },
		OnUserDisconnected: func(u domain.SessionUser) { leaves <- u },
	}))
	acceptJoin(t, f, client, "s1", "alice")

	bob := domain.SessionUser{ConnectionID: "s2", Username: "bob", RoomID: "room-1"}
	f.push(ws.UserJoined, ws.UserPayload{User: bob})

	select {
	case joined := <-joins:
		assert.Equal(t, "bob", joined.Username)
	case <-time.After(2 * time.Second):
		t.Fatal("user-joined handler never fired")
	}

	// Existing members push their replica straight to the newcomer.
	var snapshot ws.SyncFileStructurePayload
	require.NoError(t, f.next(ws.SyncFileStructure).Decode(&snapshot))
	assert.Equal(t, "s2", snapshot.TargetConnectionID)
	require.NotNil(t, snapshot.FileStructure)

	bob.CursorPosition = 42
	f.push(ws.CursorMove, ws.UserPayload{User: bob})
	require.Eventually(t, func() bool {
		peers := client.Peers()
		return len(peers) == 1 && peers[0].CursorPosition == 42
	}, 2*time.Second, 10*time.Millisecond)

	f.push(ws.UserDisconnected, ws.UserPayload{User: bob})
	select {
	case left := <-leaves:
		assert.Equal(t, "s2", left.ConnectionID)
	case <-time.After(2 * time.Second):
		t.Fatal("user-disconnected handler never fired")
	}
	assert.Empty(t, client.Peers())
}

func TestClientReadErrorFlipsToDisconnected(t *testing.T) {
	f := newFakeServer(t)

	errors := make(chan error, 1)
	client := newConnectedClient(t, f, WithHandlers(Handlers{
		OnError: func(err error) { errors <- err },
	}))
	acceptJoin(t, f, client, "s1", "alice")

	f.mu.Lock()
	f.conn.Close()
	f.mu.Unlock()

	require.Eventually(t, func() bool {
		return client.State() == StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case err := <-errors:
		assert.True(t, strings.Contains(err.Error(), "read"))
	case <-time.After(2 * time.Second):
		t.Fatal("error handler never fired")
	}
}
