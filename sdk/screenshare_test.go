package sdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecoalition/collabd/internal/infrastructure/ws"
)

func TestScreenShareStartRefusedWhileRemoteShareRuns(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)

	started := make(chan string, 1)
	stopped := make(chan struct{}, 1)
	client.ScreenShare.OnStarted = func(connectionID, username string) { started <- username }
	client.ScreenShare.OnStopped = func() { stopped <- struct{}{} }

	acceptJoin(t, f, client, "s1", "alice")

	f.push(ws.ScreenShareStarted, ws.ScreenShareStatePayload{
		SharerConnectionID: "s2",
		SharerUsername:     "bob",
	})
	select {
	case username := <-started:
		assert.Equal(t, "bob", username)
	case <-time.After(2 * time.Second):
		t.Fatal("remote share never surfaced")
	}

	err := client.ScreenShare.Start(nil)
	assert.EqualError(t, err, "another member is already sharing")

	// The refused attempt never reaches the server.
	f.expectNone(ws.ScreenShareStart, 200*time.Millisecond)

	// Once the remote share ends a local one may begin.
	f.push(ws.ScreenShareStopped, nil)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("remote share never ended")
	}

	require.NoError(t, client.ScreenShare.Start(nil))
	f.next(ws.ScreenShareStart)
}
