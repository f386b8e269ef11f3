package room

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abeloskyyy/answer/internal/metrics"
	"github.com/abeloskyyy/answer/internal/mode"
	"github.com/abeloskyyy/answer/pkg/http/ws"
)

// stubBroadcaster records every message the engine emits. Timer callbacks
// deliver from other goroutines, so access is locked.
type stubBroadcaster struct {
	mu       sync.Mutex
	roomMsgs map[string][]ws.Message
	connMsgs map[string][]ws.Message
	closed   []string
}

func newStubBroadcaster() *stubBroadcaster {
	return &stubBroadcaster{
		roomMsgs: make(map[string][]ws.Message),
		connMsgs: make(map[string][]ws.Message),
	}
}

func (b *stubBroadcaster) ToRoom(code string, msg ws.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roomMsgs[code] = append(b.roomMsgs[code], msg)
}

func (b *stubBroadcaster) ToConn(connID string, msg ws.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connMsgs[connID] = append(b.connMsgs[connID], msg)
	return nil
}

func (b *stubBroadcaster) JoinRoom(string, string)  {}
func (b *stubBroadcaster) LeaveRoom(string, string) {}

func (b *stubBroadcaster) CloseConn(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, connID)
}

func (b *stubBroadcaster) connCount(connID, msgType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.connMsgs[connID] {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

func (b *stubBroadcaster) roomCount(code, msgType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.roomMsgs[code] {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

// lastConnPayload decodes the most recent message of a type sent to a
// connection; ok is false when none was sent.
func (b *stubBroadcaster) lastConnPayload(connID, msgType string, out any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.connMsgs[connID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == msgType {
			if out != nil {
				if err := json.Unmarshal(msgs[i].Payload, out); err != nil {
					return false
				}
			}
			return true
		}
	}
	return false
}

func (b *stubBroadcaster) lastRoomPayload(code, msgType string, out any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.roomMsgs[code]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == msgType {
			if out != nil {
				if err := json.Unmarshal(msgs[i].Payload, out); err != nil {
					return false
				}
			}
			return true
		}
	}
	return false
}

func (b *stubBroadcaster) wasClosed(connID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.closed {
		if id == connID {
			return true
		}
	}
	return false
}

func testConfig() Config {
	return Config{
		MaxPlayers:        4,
		DefaultRounds:     2,
		DefaultRoundTime:  20,
		DefaultDifficulty: mode.DifficultyNormal,
		StartCountdown:    5 * time.Millisecond,
		ResultsDelay:      10 * time.Millisecond,
		DisconnectGrace:   25 * time.Millisecond,
		RoundTick:         10 * time.Millisecond,
	}
}

func newTestService(t *testing.T, cfg Config) (*Service, *stubBroadcaster, *Registry) {
	t.Helper()
	out := newStubBroadcaster()
	reg := NewRegistry(zerolog.Nop())
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(reg, mode.NewRegistry(), out, m, cfg, zerolog.Nop())
	return svc, out, reg
}

func TestCreateRoomAnnouncesHost(t *testing.T) {
	svc, out, reg := newTestService(t, testConfig())

	code := svc.CreateRoom("conn-alice", "Alice", "", "uuid-alice")
	assert.Regexp(t, codePattern, code)
	assert.Equal(t, 1, reg.RoomCount())

	var created string
	require.True(t, out.lastConnPayload("conn-alice", ws.TypeRoomCreated, &created))
	assert.Equal(t, code, created)

	var isHost bool
	require.True(t, out.lastConnPayload("conn-alice", ws.TypeHostStatus, &isHost))
	assert.True(t, isHost)

	var settings Settings
	require.True(t, out.lastConnPayload("conn-alice", ws.TypeSettingsUpdated, &settings))
	assert.Equal(t, 2, settings.Rounds)
	assert.Empty(t, settings.GameMode)

	var roster []PlayerView
	require.True(t, out.lastRoomPayload(code, ws.TypeUsersUpdated, &roster))
	require.Len(t, roster, 1)
	assert.Equal(t, "Alice", roster[0].Name)
	assert.Equal(t, defaultAvatar, roster[0].Avatar)
}

func TestJoinRoomNotFound(t *testing.T) {
	svc, out, _ := newTestService(t, testConfig())

	svc.JoinRoom("conn-bob", "NOSUCH", "Bob", "", "uuid-bob")

	var msg string
	require.True(t, out.lastConnPayload("conn-bob", ws.TypeError, &msg))
	assert.Equal(t, "Room not found!", msg)
}

func TestJoinRoomFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPlayers = 2
	svc, out, _ := newTestService(t, cfg)

	code := svc.CreateRoom("conn-alice", "Alice", "", "")
	svc.JoinRoom("conn-bob", code, "Bob", "", "")
	svc.JoinRoom("conn-cara", code, "Cara", "", "")

	var msg string
	require.True(t, out.lastConnPayload("conn-cara", ws.TypeError, &msg))
	assert.Equal(t, "Room is full!", msg)

	var roster []PlayerView
	require.True(t, out.lastRoomPayload(code, ws.TypeUsersUpdated, &roster))
	assert.Len(t, roster, 2)
}

func TestJoinRoomDuringGameRejected(t *testing.T) {
	svc, out, _ := newTestService(t, testConfig())

	code := svc.CreateRoom("conn-alice", "Alice", "", "")
	svc.JoinRoom("conn-bob", code, "Bob", "", "")
	svc.StartGame("conn-alice", code)

	svc.JoinRoom("conn-cara", code, "Cara", "", "")

	var msg string
	require.True(t, out.lastConnPayload("conn-cara", ws.TypeError, &msg))
	assert.Equal(t, "Game already started! Wait for it to finish.", msg)
}

func TestStartGameRequiresTwoPlayers(t *testing.T) {
	svc, out, _ := newTestService(t, testConfig())

	code := svc.CreateRoom("conn-alice", "Alice", "", "")
	svc.StartGame("conn-alice", code)

	var msg string
	require.True(t, out.lastConnPayload("conn-alice", ws.TypeError, &msg))
	assert.Equal(t, "Need at least 2 players to start.", msg)
	assert.Equal(t, 0, out.roomCount(code, ws.TypeGameStarted))
}

func TestStartGameHostOnly(t *testing.T) {
	svc, out, _ := newTestService(t, testConfig())

	code := svc.CreateRoom("conn-alice", "Alice", "", "")
	svc.JoinRoom("conn-bob", code, "Bob", "", "")

	svc.StartGame("conn-bob", code)

	assert.Equal(t, 0, out.roomCount(code, ws.TypeGameStarted))
	assert.Equal(t, 0, out.connCount("conn-bob", ws.TypeError))
}

func TestUpdateSettingsHostOnly(t *testing.T) {
	svc, out, _ := newTestService(t, testConfig())

	code := svc.CreateRoom("conn-alice", "Alice", "", "")
	svc.JoinRoom("conn-bob", code, "Bob", "", "")
	before := out.roomCount(code, ws.TypeSettingsUpdated)

	svc.UpdateSettings("conn-bob", code, json.RawMessage(`{"rounds":99}`))
	assert.Equal(t, before, out.roomCount(code, ws.TypeSettingsUpdated))

	svc.UpdateSettings("conn-alice", code, json.RawMessage(`{"rounds":3,"gameMode":"prime_master"}`))

	var settings Settings
	require.True(t, out.lastRoomPayload(code, ws.TypeSettingsUpdated, &settings))
	assert.Equal(t, 3, settings.Rounds)
	assert.Equal(t, "prime_master", settings.GameMode)
}

func TestGameFlowBinaryBlitz(t *testing.T) {
	cfg := testConfig()
	svc, out, reg := newTestService(t, cfg)

	code := svc.CreateRoom("conn-alice", "Alice", "", "uuid-alice")
	svc.JoinRoom("conn-bob", code, "Bob", "", "uuid-bob")
	svc.UpdateSettings("conn-alice", code, json.RawMessage(`{"gameMode":"binary_blitz","rounds":1}`))

	svc.StartGame("conn-alice", code)
	assert.Equal(t, 1, out.roomCount(code, ws.TypeGameStarted))

	require.Eventually(t, func() bool {
		return out.roomCount(code, ws.TypeNewRound) == 1
	}, time.Second, time.Millisecond, "round should start after the countdown")

	var newRound struct {
		Round       int `json:"round"`
		TotalRounds int `json:"totalRounds"`
		Time        int `json:"time"`
		Question    int `json:"question"`
	}
	require.True(t, out.lastRoomPayload(code, ws.TypeNewRound, &newRound))
	assert.Equal(t, 1, newRound.Round)
	assert.Equal(t, 1, newRound.TotalRounds)
	assert.Equal(t, cfg.DefaultRoundTime, newRound.Time)

	// The server holds the expected answer; read it to play both seats.
	var correct string
	require.NoError(t, reg.WithRoom(code, func(room *Room) error {
		correct = room.Question.CorrectDisplay().(string)
		return nil
	}))

	svc.SubmitAnswer("conn-alice", code, correct)
	assert.Equal(t, 1, out.connCount("conn-alice", ws.TypeAnswerConfirmed))

	// Duplicate submissions are dropped without a second confirmation.
	svc.SubmitAnswer("conn-alice", code, "0")
	assert.Equal(t, 1, out.connCount("conn-alice", ws.TypeAnswerConfirmed))

	// Second answer triggers the all-answered fast path.
	svc.SubmitAnswer("conn-bob", code, "definitely wrong")
	assert.Equal(t, 1, out.roomCount(code, ws.TypeRoundResult))

	var result struct {
		Winner    string         `json:"winner"`
		Rankings  []mode.Ranking `json:"rankings"`
		IsTie     bool           `json:"isTie"`
		Mode      string         `json:"mode"`
		StartTime int64          `json:"startTime"`
	}
	require.True(t, out.lastRoomPayload(code, ws.TypeRoundResult, &result))
	assert.Equal(t, "Alice", result.Winner)
	assert.Equal(t, "binary_blitz", result.Mode)
	assert.False(t, result.IsTie)
	assert.NotZero(t, result.StartTime)
	require.Len(t, result.Rankings, 2)
	assert.Equal(t, 100, result.Rankings[0].Awarded)
	assert.Equal(t, 0, result.Rankings[1].Awarded)

	// Last round done: game over follows after the results delay, final
	// standings sorted by score.
	require.Eventually(t, func() bool {
		return out.roomCount(code, ws.TypeGameOver) == 1
	}, time.Second, time.Millisecond)

	var final []PlayerView
	require.True(t, out.lastRoomPayload(code, ws.TypeGameOver, &final))
	require.Len(t, final, 2)
	assert.Equal(t, "Alice", final[0].Name)
	assert.Equal(t, 100, final[0].Score)
	assert.Equal(t, 0, final[1].Score)

	// Finished rooms accept a fresh start with reset scores.
	svc.StartGame("conn-alice", code)
	var roster []PlayerView
	require.True(t, out.lastRoomPayload(code, ws.TypeUsersUpdated, &roster))
	for _, p := range roster {
		assert.Zero(t, p.Score)
	}
}

func TestModeSwitchMidRoundScoresDealtMode(t *testing.T) {
	svc, out, reg := newTestService(t, testConfig())

	code := svc.CreateRoom("conn-alice", "Alice", "", "")
	svc.JoinRoom("conn-bob", code, "Bob", "", "")
	svc.UpdateSettings("conn-alice", code, json.RawMessage(`{"gameMode":"binary_blitz","rounds":1}`))
	svc.StartGame("conn-alice", code)

	require.Eventually(t, func() bool {
		return out.roomCount(code, ws.TypeNewRound) == 1
	}, time.Second, time.Millisecond)

	// The host flips the mode while the question is live; the dealt
	// question must still be scored by the mode that generated it.
	svc.UpdateSettings("conn-alice", code, json.RawMessage(`{"gameMode":"root_rush"}`))

	var correct string
	require.NoError(t, reg.WithRoom(code, func(room *Room) error {
		correct = room.Question.CorrectDisplay().(string)
		return nil
	}))

	svc.SubmitAnswer("conn-alice", code, correct)
	svc.SubmitAnswer("conn-bob", code, "wrong")

	var result struct {
		Winner string `json:"winner"`
		Mode   string `json:"mode"`
	}
	require.True(t, out.lastRoomPayload(code, ws.TypeRoundResult, &result))
	assert.Equal(t, "binary_blitz", result.Mode)
	assert.Equal(t, "Alice", result.Winner)

	var settings Settings
	require.True(t, out.lastRoomPayload(code, ws.TypeSettingsUpdated, &settings))
	assert.Equal(t, "root_rush", settings.GameMode, "the patch itself still lands for the next round")
}

func TestStartGameMissingRoomStaysSilent(t *testing.T) {
	svc, out, _ := newTestService(t, testConfig())

	svc.StartGame("conn-alice", "NOSUCH")

	assert.Equal(t, 0, out.connCount("conn-alice", ws.TypeError))
}

func TestRoundConcludesOnTimeout(t *testing.T) {
	svc, out, _ := newTestService(t, testConfig())

	code := svc.CreateRoom("conn-alice", "Alice", "", "")
	svc.JoinRoom("conn-bob", code, "Bob", "", "")
	svc.UpdateSettings("conn-alice", code, json.RawMessage(`{"gameMode":"root_rush","rounds":1}`))
	svc.StartGame("conn-alice", code)

	// Nobody answers; the countdown alone must conclude the round.
	require.Eventually(t, func() bool {
		return out.roomCount(code, ws.TypeRoundResult) == 1
	}, time.Second, time.Millisecond)

	var result struct {
		Winner string `json:"winner"`
	}
	require.True(t, out.lastRoomPayload(code, ws.TypeRoundResult, &result))
	assert.Equal(t, "No one", result.Winner)
}

func TestSubmitAnswerOutsideRoundIgnored(t *testing.T) {
	svc, out, _ := newTestService(t, testConfig())

	code := svc.CreateRoom("conn-alice", "Alice", "", "")
	svc.JoinRoom("conn-bob", code, "Bob", "", "")

	svc.SubmitAnswer("conn-alice", code, "42")
	assert.Equal(t, 0, out.connCount("conn-alice", ws.TypeAnswerConfirmed))

	svc.StartGame("conn-alice", code)
	require.Eventually(t, func() bool {
		return out.roomCount(code, ws.TypeNewRound) == 1
	}, time.Second, time.Millisecond)

	// Strangers cannot submit into someone else's room.
	svc.SubmitAnswer("conn-mallory", code, "42")
	assert.Equal(t, 0, out.connCount("conn-mallory", ws.TypeAnswerConfirmed))
}

func TestLeaveRoomPromotesNextHost(t *testing.T) {
	svc, out, reg := newTestService(t, testConfig())

	code := svc.CreateRoom("conn-alice", "Alice", "", "")
	svc.JoinRoom("conn-bob", code, "Bob", "", "")
	svc.JoinRoom("conn-cara", code, "Cara", "", "")

	svc.LeaveRoom("conn-alice", code)

	var isHost bool
	require.True(t, out.lastConnPayload("conn-bob", ws.TypeHostStatus, &isHost))
	assert.True(t, isHost, "longest-tenured remaining player becomes host")

	reg.WithRoom(code, func(room *Room) error {
		assert.Equal(t, "conn-bob", room.HostID)
		assert.Len(t, room.Players, 2)
		return nil
	})

	var chat ws.ChatPayload
	require.True(t, out.lastRoomPayload(code, ws.TypeReceiveMessage, &chat))
	assert.Equal(t, "System", chat.User)
	assert.Equal(t, "Bob is now the host.", chat.Text)
}

func TestLeaveRoomDeletesEmptyRoom(t *testing.T) {
	svc, _, reg := newTestService(t, testConfig())

	code := svc.CreateRoom("conn-alice", "Alice", "", "")
	svc.LeaveRoom("conn-alice", code)

	assert.Equal(t, 0, reg.RoomCount())
	assert.ErrorIs(t, reg.WithRoom(code, func(*Room) error { return nil }), ErrRoomNotFound)
}

func TestKickPlayer(t *testing.T) {
	svc, out, reg := newTestService(t, testConfig())

	code := svc.CreateRoom("conn-alice", "Alice", "", "")
	svc.JoinRoom("conn-bob", code, "Bob", "", "")

	// Non-host kicks are ignored.
	svc.KickPlayer("conn-bob", code, "conn-alice")
	assert.False(t, out.wasClosed("conn-alice"))

	svc.KickPlayer("conn-alice", code, "conn-bob")

	assert.Equal(t, 1, out.connCount("conn-bob", ws.TypeKicked))
	assert.True(t, out.wasClosed("conn-bob"))

	reg.WithRoom(code, func(room *Room) error {
		assert.Len(t, room.Players, 1)
		return nil
	})

	// The kicked seat is gone immediately; a later transport disconnect
	// must not start a grace period for it.
	svc.HandleDisconnect("conn-bob")
	reg.WithRoom(code, func(room *Room) error {
		assert.Len(t, room.Players, 1)
		return nil
	})
}

func TestDisconnectGraceExpires(t *testing.T) {
	svc, out, reg := newTestService(t, testConfig())

	code := svc.CreateRoom("conn-alice", "Alice", "", "")
	svc.JoinRoom("conn-bob", code, "Bob", "", "")

	svc.HandleDisconnect("conn-bob")

	var roster []PlayerView
	require.True(t, out.lastRoomPayload(code, ws.TypeUsersUpdated, &roster))
	require.Len(t, roster, 2)
	assert.True(t, roster[1].Disconnected, "seat is held and flagged during grace")

	require.Eventually(t, func() bool {
		ok := false
		reg.WithRoom(code, func(room *Room) error {
			ok = len(room.Players) == 1
			return nil
		})
		return ok
	}, time.Second, time.Millisecond, "grace expiry removes the seat")
}

func TestReconnectWithinGrace(t *testing.T) {
	cfg := testConfig()
	svc, out, reg := newTestService(t, cfg)

	code := svc.CreateRoom("conn-alice", "Alice", "", "uuid-alice")
	svc.JoinRoom("conn-bob", code, "Bob", "", "uuid-bob")

	// Give Bob a score to verify it survives the reconnect.
	reg.WithRoom(code, func(room *Room) error {
		room.Players[1].Score = 180
		return nil
	})

	svc.HandleDisconnect("conn-bob")
	svc.JoinRoom("conn-bob-2", code, "Bob", "", "uuid-bob")

	var joined string
	require.True(t, out.lastConnPayload("conn-bob-2", ws.TypeRoomJoined, &joined))
	assert.Equal(t, code, joined)

	reg.WithRoom(code, func(room *Room) error {
		require.Len(t, room.Players, 2)
		bob := room.Players[1]
		assert.Equal(t, "conn-bob-2", bob.ConnID)
		assert.Equal(t, 180, bob.Score)
		assert.False(t, bob.Disconnected)
		return nil
	})

	// The old grace timer must not reap the restored seat.
	time.Sleep(2 * cfg.DisconnectGrace)
	reg.WithRoom(code, func(room *Room) error {
		assert.Len(t, room.Players, 2)
		return nil
	})
}

func TestReconnectingHostKeepsHostSeat(t *testing.T) {
	svc, out, reg := newTestService(t, testConfig())

	code := svc.CreateRoom("conn-alice", "Alice", "", "uuid-alice")
	svc.JoinRoom("conn-bob", code, "Bob", "", "uuid-bob")

	svc.HandleDisconnect("conn-alice")
	svc.JoinRoom("conn-alice-2", code, "Alice", "", "uuid-alice")

	var isHost bool
	require.True(t, out.lastConnPayload("conn-alice-2", ws.TypeHostStatus, &isHost))
	assert.True(t, isHost)

	reg.WithRoom(code, func(room *Room) error {
		assert.Equal(t, "conn-alice-2", room.HostID)
		return nil
	})
}

func TestSendChatRelaysToRoom(t *testing.T) {
	svc, out, _ := newTestService(t, testConfig())

	code := svc.CreateRoom("conn-alice", "Alice", "", "")
	svc.SendChat(code, "Alice", "hello there")

	var chat ws.ChatPayload
	require.True(t, out.lastRoomPayload(code, ws.TypeReceiveMessage, &chat))
	assert.Equal(t, "Alice", chat.User)
	assert.Equal(t, "hello there", chat.Text)
}

func TestDisplayName(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())

	svc.CreateRoom("conn-alice", "Alice", "", "")

	name, ok := svc.DisplayName("conn-alice")
	assert.True(t, ok)
	assert.Equal(t, "Alice", name)

	_, ok = svc.DisplayName("conn-ghost")
	assert.False(t, ok)
}
