package sdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecoalition/collabd/internal/infrastructure/ws"
)

func TestPresenceTypingBurst(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	presence := client.Presence

	// Only the first keystroke of a burst announces typing.
	presence.Keystroke(ws.CursorPayload{FileID: "f1", CursorPosition: 1})
	presence.Keystroke(ws.CursorPayload{FileID: "f1", CursorPosition: 2})
	presence.Keystroke(ws.CursorPayload{FileID: "f1", CursorPosition: 3})

	var start ws.CursorPayload
	require.NoError(t, f.next(ws.TypingStart).Decode(&start))
	assert.Equal(t, "f1", start.FileID)
	assert.Equal(t, 1, start.CursorPosition)

	f.expectNone(ws.TypingStart, 200*time.Millisecond)

	// Silence ends the burst.
	f.next(ws.TypingPause)

	// The next keystroke opens a fresh burst.
	presence.Keystroke(ws.CursorPayload{FileID: "f1", CursorPosition: 4})
	f.next(ws.TypingStart)
}

func TestPresenceCursorCoalescing(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	presence := client.Presence

	// A burst of moves collapses into one broadcast with the latest position.
	presence.MoveCursor(ws.CursorPayload{FileID: "f1", CursorPosition: 1})
	presence.MoveCursor(ws.CursorPayload{FileID: "f1", CursorPosition: 2})
	presence.MoveCursor(ws.CursorPayload{FileID: "f1", CursorPosition: 9})

	var move ws.CursorPayload
	require.NoError(t, f.next(ws.CursorMove).Decode(&move))
	assert.Equal(t, 9, move.CursorPosition)

	f.expectNone(ws.CursorMove, 200*time.Millisecond)

	// Repeating the already-broadcast position stays silent.
	presence.MoveCursor(ws.CursorPayload{FileID: "f1", CursorPosition: 9})
	f.expectNone(ws.CursorMove, 200*time.Millisecond)

	presence.MoveCursor(ws.CursorPayload{FileID: "f1", CursorPosition: 10})
	require.NoError(t, f.next(ws.CursorMove).Decode(&move))
	assert.Equal(t, 10, move.CursorPosition)
}

func TestPresenceOnlineOffline(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	acceptJoin(t, f, client, "s1", "alice")

	require.NoError(t, client.Presence.SetOffline())
	var payload ws.ConnectionPayload
	require.NoError(t, f.next(ws.UserOffline).Decode(&payload))
	assert.Equal(t, "s1", payload.ConnectionID)

	require.NoError(t, client.Presence.SetOnline())
	require.NoError(t, f.next(ws.UserOnline).Decode(&payload))
	assert.Equal(t, "s1", payload.ConnectionID)
}
