package room

import (
	"math/rand"
	"sync"

	"github.com/rs/zerolog"
)

const codeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Registry is the authoritative in-memory store of rooms, plus an index
// from live connection ids to the room each one sits in. Every mutation of
// room state runs to completion inside the registry mutex, which gives the
// engine its event-at-a-time ordering guarantees.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	conns  map[string]string // connection id -> room code
	logger zerolog.Logger
}

// NewRegistry creates an empty room store.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		conns:  make(map[string]string),
		logger: logger,
	}
}

// Create allocates a fresh unique code, builds the room with it, and
// indexes the founding players.
func (r *Registry) Create(build func(code string) *Room) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := r.generateCodeLocked()
	room := build(code)
	r.rooms[code] = room
	for _, p := range room.Players {
		r.conns[p.ConnID] = code
	}
	return code
}

// WithRoom runs fn on the named room under the registry lock. A missing
// room returns ErrRoomNotFound without calling fn, which is how stale
// timer callbacks and requests against deleted rooms silently abort.
func (r *Registry) WithRoom(code string, fn func(*Room) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	return fn(room)
}

// WithRoomOf resolves the room a connection sits in and runs fn on it.
func (r *Registry) WithRoomOf(connID string, fn func(*Room) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.conns[connID]
	if !ok {
		return ErrRoomNotFound
	}
	room, ok := r.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	return fn(room)
}

// RoomCount reports how many rooms are alive.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// bindLocked and friends assume the caller holds mu via Create/WithRoom.

func (r *Registry) bindLocked(connID, code string) {
	r.conns[connID] = code
}

func (r *Registry) unbindLocked(connID string) {
	delete(r.conns, connID)
}

func (r *Registry) deleteRoomLocked(code string) {
	delete(r.rooms, code)
	r.logger.Info().Str("room", code).Msg("room deleted")
}

func (r *Registry) generateCodeLocked() string {
	for {
		buf := make([]byte, codeLength)
		for i := range buf {
			buf[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
		}
		code := string(buf)
		if _, exists := r.rooms[code]; !exists {
			return code
		}
	}
}
