package room

import (
	"sync"
	"time"

	"github.com/abeloskyyy/answer/internal/mode"
)

// Room lifecycle states.
const (
	StateWaiting  = "waiting"
	StatePlaying  = "playing"
	StateFinished = "finished"
)

// Settings is the host-controlled room configuration. An empty GameMode
// means the host is still on the mode-selection screen.
type Settings struct {
	GameMode     string `json:"gameMode,omitempty"`
	Rounds       int    `json:"rounds"`
	TimePerRound int    `json:"timePerRound"`
	Difficulty   string `json:"difficulty"`
}

// Player is a room-scoped seat. ConnID changes across reconnects;
// PersistentID survives them.
type Player struct {
	ConnID         string
	PersistentID   string
	Name           string
	Avatar         string
	Score          int
	Disconnected   bool
	DisconnectedAt time.Time

	graceTimer *time.Timer
}

func (p *Player) cancelGrace() {
	if p.graceTimer != nil {
		p.graceTimer.Stop()
		p.graceTimer = nil
	}
}

// PlayerView is the update_users wire row.
type PlayerView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Avatar       string `json:"avatar"`
	Score        int    `json:"score"`
	Disconnected bool   `json:"disconnected"`
}

// Room is the authoritative state of one play session. All fields are
// guarded by the registry mutex; timer handles are cancelled by whichever
// transition supersedes them.
type Room struct {
	Code         string
	HostID       string
	Players      []*Player // join order, never resorted
	Settings     Settings
	State        string
	CurrentRound int
	Question     mode.Question
	RoundMode    mode.Mode // pinned at deal time; gameMode changes apply from the next round
	RoundAnswers map[string]mode.Submission
	RoundStart   time.Time

	countdownTimer *time.Timer  // game-start countdown
	nextRoundTimer *time.Timer  // results-display delay
	roundTicker    *roundTicker // per-second in-round countdown
}

func (r *Room) playerByConn(connID string) *Player {
	for _, p := range r.Players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

func (r *Room) playerIndexByConn(connID string) int {
	for i, p := range r.Players {
		if p.ConnID == connID {
			return i
		}
	}
	return -1
}

// findReconnectable returns the disconnected seat matching a joining
// identity: persistent id when the client has one, display name otherwise.
func (r *Room) findReconnectable(name, persistentID string) *Player {
	for _, p := range r.Players {
		if !p.Disconnected {
			continue
		}
		if persistentID != "" && p.PersistentID == persistentID {
			return p
		}
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Views renders the roster for update_users broadcasts.
func (r *Room) Views() []PlayerView {
	views := make([]PlayerView, len(r.Players))
	for i, p := range r.Players {
		views[i] = PlayerView{
			ID:           p.ConnID,
			Name:         p.Name,
			Avatar:       p.Avatar,
			Score:        p.Score,
			Disconnected: p.Disconnected,
		}
	}
	return views
}

// cancelRoundTimers stops every scheduler timer owned by the room. Grace
// timers belong to players and are cancelled on seat removal.
func (r *Room) cancelRoundTimers() {
	if r.countdownTimer != nil {
		r.countdownTimer.Stop()
		r.countdownTimer = nil
	}
	if r.nextRoundTimer != nil {
		r.nextRoundTimer.Stop()
		r.nextRoundTimer = nil
	}
	if r.roundTicker != nil {
		r.roundTicker.Stop()
		r.roundTicker = nil
	}
}

// roundTicker owns the stop channel of one round's countdown goroutine.
type roundTicker struct {
	stop chan struct{}
	once sync.Once
}

func newRoundTicker() *roundTicker {
	return &roundTicker{stop: make(chan struct{})}
}

func (t *roundTicker) Stop() {
	t.once.Do(func() { close(t.stop) })
}
