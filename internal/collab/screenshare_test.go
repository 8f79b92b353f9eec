package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecoalition/collabd/internal/domain"
)

func newShareFixture(t *testing.T) (*Registry, *ScreenShareState) {
	t.Helper()
	registry := NewRegistry()
	require.NoError(t, registry.AddUser(mustUser(t, "c1", "alice", "room-1", true)))
	require.NoError(t, registry.AddUser(mustUser(t, "c2", "bob", "room-1", false)))
	require.NoError(t, registry.AddUser(mustUser(t, "c3", "carol", "room-2", true)))
	return registry, NewScreenShareState(registry)
}

func TestScreenShareSingleSharerPerRoom(t *testing.T) {
	_, state := newShareFixture(t)

	session, err := state.Start("c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", session.SharerConnectionID)
	assert.Equal(t, "alice", session.SharerUsername)

	_, err = state.Start("c2")
	assert.ErrorIs(t, err, domain.ErrAlreadySharing)

	// Starting again from the same sharer is not an error.
	_, err = state.Start("c1")
	assert.NoError(t, err)

	// A different room shares independently.
	_, err = state.Start("c3")
	assert.NoError(t, err)
	assert.Equal(t, 2, state.ActiveCount())
}

func TestScreenShareStop(t *testing.T) {
	_, state := newShareFixture(t)

	_, err := state.Start("c1")
	require.NoError(t, err)

	// Only the active sharer can stop the share.
	_, err = state.Stop("c2")
	assert.ErrorIs(t, err, domain.ErrNotSharing)

	session, err := state.Stop("c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", session.SharerConnectionID)

	_, ok := state.Active("room-1")
	assert.False(t, ok)

	_, err = state.Stop("c1")
	assert.ErrorIs(t, err, domain.ErrNotSharing)
}

func TestScreenShareDisconnectClearsShare(t *testing.T) {
	_, state := newShareFixture(t)

	_, err := state.Start("c1")
	require.NoError(t, err)

	// A viewer leaving does not touch the share.
	_, stopped := state.HandleDisconnect("c2", "room-1")
	assert.False(t, stopped)
	_, ok := state.Active("room-1")
	assert.True(t, ok)

	session, stopped := state.HandleDisconnect("c1", "room-1")
	require.True(t, stopped)
	assert.Equal(t, "alice", session.SharerUsername)
	_, ok = state.Active("room-1")
	assert.False(t, ok)
}

func TestScreenShareValidateTarget(t *testing.T) {
	_, state := newShareFixture(t)

	assert.NoError(t, state.ValidateTarget("c1", "c2"))
	assert.ErrorIs(t, state.ValidateTarget("c1", "c3"), domain.ErrTargetNotInRoom)
	assert.ErrorIs(t, state.ValidateTarget("c1", "missing"), domain.ErrTargetNotInRoom)
	assert.ErrorIs(t, state.ValidateTarget("missing", "c1"), domain.ErrUserNotFound)
}

func TestScreenShareActiveReturnsCopy(t *testing.T) {
	_, state := newShareFixture(t)

	_, err := state.Start("c1")
	require.NoError(t, err)

	session, ok := state.Active("room-1")
	require.True(t, ok)
	session.SharerUsername = "mallory"

	fresh, ok := state.Active("room-1")
	require.True(t, ok)
	assert.Equal(t, "alice", fresh.SharerUsername)
}
