package room

import (
	"regexp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

func TestCreateGeneratesCode(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())

	seen := map[string]struct{}{}
	for i := 0; i < 20; i++ {
		code := reg.Create(func(code string) *Room {
			return &Room{Code: code, State: StateWaiting}
		})
		assert.Regexp(t, codePattern, code)
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, 20)
	assert.Equal(t, 20, reg.RoomCount())
}

func TestWithRoomMissing(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())

	called := false
	err := reg.WithRoom("ZZZZZZ", func(*Room) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.False(t, called)
}

func TestWithRoomOfTracksConnections(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())

	code := reg.Create(func(code string) *Room {
		return &Room{
			Code:    code,
			HostID:  "conn-1",
			Players: []*Player{{ConnID: "conn-1", Name: "Alice"}},
			State:   StateWaiting,
		}
	})

	var got string
	err := reg.WithRoomOf("conn-1", func(room *Room) error {
		got = room.Code
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, code, got)

	assert.ErrorIs(t, reg.WithRoomOf("conn-2", func(*Room) error { return nil }), ErrRoomNotFound)

	// Deleting the room invalidates the connection index too.
	reg.WithRoom(code, func(room *Room) error {
		reg.unbindLocked("conn-1")
		reg.deleteRoomLocked(code)
		return nil
	})
	assert.ErrorIs(t, reg.WithRoomOf("conn-1", func(*Room) error { return nil }), ErrRoomNotFound)
	assert.Equal(t, 0, reg.RoomCount())
}

func TestUserMessages(t *testing.T) {
	assert.Equal(t, "Room not found!", userMessage(ErrRoomNotFound))
	assert.Equal(t, "Game already started! Wait for it to finish.", userMessage(ErrGameInProgress))
	assert.Equal(t, "Room is full!", userMessage(ErrRoomFull))
	assert.Equal(t, "Need at least 2 players to start.", userMessage(ErrTooFewPlayers))
}
