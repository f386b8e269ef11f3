package room

import "errors"

// Join and start failures that surface as user-visible error events.
// Unauthorized host actions and duplicate submissions stay silent.
var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrGameInProgress = errors.New("game in progress")
	ErrRoomFull       = errors.New("room full")
	ErrTooFewPlayers  = errors.New("too few players")
)

// userMessage maps a sentinel to the text shown in the error event.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "Room not found!"
	case errors.Is(err, ErrGameInProgress):
		return "Game already started! Wait for it to finish."
	case errors.Is(err, ErrRoomFull):
		return "Room is full!"
	case errors.Is(err, ErrTooFewPlayers):
		return "Need at least 2 players to start."
	}
	return "Something went wrong."
}
