package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/abeloskyyy/answer/internal/metrics"
	"github.com/abeloskyyy/answer/internal/mode"
	"github.com/abeloskyyy/answer/pkg/http/ws"
)

const defaultAvatar = "avatar_1.png"

// Broadcaster delivers wire messages to connections and room groups and
// manages the hub's room grouping. Sends must never block; the engine
// broadcasts while holding the registry lock.
type Broadcaster interface {
	ToRoom(code string, msg ws.Message)
	ToConn(connID string, msg ws.Message) error
	JoinRoom(code, connID string)
	LeaveRoom(code, connID string)
	CloseConn(connID string)
}

// Config carries gameplay defaults and the server-enforced timing budgets.
type Config struct {
	MaxPlayers        int
	DefaultRounds     int
	DefaultRoundTime  int
	DefaultDifficulty string
	StartCountdown    time.Duration
	ResultsDelay      time.Duration
	DisconnectGrace   time.Duration
	RoundTick         time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxPlayers:        20,
		DefaultRounds:     5,
		DefaultRoundTime:  15,
		DefaultDifficulty: mode.DifficultyNormal,
		StartCountdown:    3200 * time.Millisecond,
		ResultsDelay:      5 * time.Second,
		DisconnectGrace:   40 * time.Second,
		RoundTick:         time.Second,
	}
}

// Service orchestrates the room lifecycle: membership, settings, round
// scheduling, scoring, and the disconnect grace protocol.
type Service struct {
	reg     *Registry
	modes   *mode.Registry
	out     Broadcaster
	metrics *metrics.Metrics
	cfg     Config
	logger  zerolog.Logger
}

// NewService creates the room engine with its dependencies.
func NewService(reg *Registry, modes *mode.Registry, out Broadcaster, m *metrics.Metrics, cfg Config, logger zerolog.Logger) *Service {
	if cfg.MaxPlayers == 0 {
		cfg = DefaultConfig()
	}
	if cfg.RoundTick == 0 {
		cfg.RoundTick = time.Second
	}
	return &Service{
		reg:     reg,
		modes:   modes,
		out:     out,
		metrics: m,
		cfg:     cfg,
		logger:  logger,
	}
}

// CreateRoom allocates a room with the requester as host and announces it.
func (s *Service) CreateRoom(connID, name, avatar, persistentID string) string {
	if avatar == "" {
		avatar = defaultAvatar
	}

	code := s.reg.Create(func(code string) *Room {
		return &Room{
			Code:   code,
			HostID: connID,
			Players: []*Player{{
				ConnID:       connID,
				PersistentID: persistentID,
				Name:         name,
				Avatar:       avatar,
			}},
			Settings: Settings{
				Rounds:       s.cfg.DefaultRounds,
				TimePerRound: s.cfg.DefaultRoundTime,
				Difficulty:   s.cfg.DefaultDifficulty,
			},
			State:        StateWaiting,
			RoundAnswers: make(map[string]mode.Submission),
		}
	})

	s.reg.WithRoom(code, func(room *Room) error {
		s.out.JoinRoom(code, connID)
		s.out.ToConn(connID, ws.NewMessage(ws.TypeRoomCreated, code))
		s.out.ToConn(connID, ws.NewMessage(ws.TypeSettingsUpdated, room.Settings))
		s.out.ToConn(connID, ws.NewMessage(ws.TypeHostStatus, true))
		s.out.ToRoom(code, ws.NewMessage(ws.TypeUsersUpdated, room.Views()))
		return nil
	})

	s.metrics.RoomsOpen.Inc()
	s.metrics.PlayersConnected.Inc()
	s.logger.Info().Str("room", code).Str("name", name).Str("conn_id", connID).Msg("room created")
	return code
}

// JoinRoom seats a player, or restores a disconnected seat when the joiner
// matches one (reconnection). Failures surface as error events.
func (s *Service) JoinRoom(connID, code, name, avatar, persistentID string) {
	err := s.reg.WithRoom(code, func(room *Room) error {
		if seat := room.findReconnectable(name, persistentID); seat != nil {
			s.reconnectLocked(room, seat, connID, avatar)
			return nil
		}

		if room.State == StatePlaying {
			return ErrGameInProgress
		}
		if len(room.Players) >= s.cfg.MaxPlayers {
			return ErrRoomFull
		}

		if avatar == "" {
			avatar = defaultAvatar
		}
		room.Players = append(room.Players, &Player{
			ConnID:       connID,
			PersistentID: persistentID,
			Name:         name,
			Avatar:       avatar,
		})
		s.reg.bindLocked(connID, code)
		s.out.JoinRoom(code, connID)

		s.out.ToConn(connID, ws.NewMessage(ws.TypeRoomJoined, code))
		s.out.ToConn(connID, ws.NewMessage(ws.TypeSettingsUpdated, room.Settings))
		s.out.ToConn(connID, ws.NewMessage(ws.TypeHostStatus, false))
		s.out.ToRoom(code, ws.NewMessage(ws.TypeUsersUpdated, room.Views()))
		s.systemChat(code, fmt.Sprintf("%s joined the room.", name))

		s.metrics.PlayersConnected.Inc()
		s.logger.Info().Str("room", code).Str("name", name).Str("conn_id", connID).Msg("player joined")
		return nil
	})
	if err != nil {
		s.sendError(connID, err)
	}
}

// reconnectLocked swaps a disconnected seat onto a fresh connection,
// preserving score and join position.
func (s *Service) reconnectLocked(room *Room, seat *Player, connID, avatar string) {
	oldConn := seat.ConnID
	seat.cancelGrace()
	s.reg.unbindLocked(oldConn)
	s.out.LeaveRoom(room.Code, oldConn)

	seat.ConnID = connID
	seat.Disconnected = false
	seat.DisconnectedAt = time.Time{}
	if avatar != "" {
		seat.Avatar = avatar
	}
	if room.HostID == oldConn {
		room.HostID = connID
	}

	s.reg.bindLocked(connID, room.Code)
	s.out.JoinRoom(room.Code, connID)

	s.out.ToConn(connID, ws.NewMessage(ws.TypeRoomJoined, room.Code))
	s.out.ToConn(connID, ws.NewMessage(ws.TypeSettingsUpdated, room.Settings))
	s.out.ToConn(connID, ws.NewMessage(ws.TypeHostStatus, room.HostID == connID))
	s.out.ToRoom(room.Code, ws.NewMessage(ws.TypeUsersUpdated, room.Views()))
	s.systemChat(room.Code, fmt.Sprintf("%s reconnected.", seat.Name))

	s.logger.Info().Str("room", room.Code).Str("name", seat.Name).
		Str("conn_id", connID).Str("old_conn_id", oldConn).Msg("player reconnected")
}

// UpdateSettings merges a host's settings patch and mirrors the result to
// the whole room. Non-host patches are silently ignored.
func (s *Service) UpdateSettings(connID, code string, patch json.RawMessage) {
	s.reg.WithRoom(code, func(room *Room) error {
		if room.HostID != connID {
			return nil
		}
		if err := room.Settings.applyPatch(patch); err != nil {
			s.logger.Warn().Err(err).Str("room", code).Msg("bad settings patch")
			return nil
		}
		s.out.ToRoom(code, ws.NewMessage(ws.TypeSettingsUpdated, room.Settings))
		return nil
	})
}

// RequestSettings replays the current settings to one member, e.g. a
// freshly promoted host.
func (s *Service) RequestSettings(connID, code string) {
	s.reg.WithRoom(code, func(room *Room) error {
		s.out.ToConn(connID, ws.NewMessage(ws.TypeSettingsUpdated, room.Settings))
		return nil
	})
}

// SendChat relays a chat line to the room.
func (s *Service) SendChat(code, username, text string) {
	s.reg.WithRoom(code, func(room *Room) error {
		s.out.ToRoom(code, ws.NewMessage(ws.TypeReceiveMessage, ws.ChatPayload{User: username, Text: text}))
		return nil
	})
}

// DisplayName resolves the display name of a seated connection.
func (s *Service) DisplayName(connID string) (string, bool) {
	var name string
	err := s.reg.WithRoomOf(connID, func(room *Room) error {
		if p := room.playerByConn(connID); p != nil {
			name = p.Name
		}
		return nil
	})
	return name, err == nil && name != ""
}

// LeaveRoom removes a player immediately. Dropping the connection index
// entry here is what keeps the follow-up transport disconnect from being
// double-processed by the grace logic.
func (s *Service) LeaveRoom(connID, code string) {
	s.reg.WithRoom(code, func(room *Room) error {
		idx := room.playerIndexByConn(connID)
		if idx == -1 {
			return nil
		}
		name := room.Players[idx].Name
		s.removePlayerLocked(room, idx, fmt.Sprintf("%s left the room.", name))
		s.logger.Info().Str("room", code).Str("name", name).Str("conn_id", connID).Msg("player left")
		return nil
	})
}

// KickPlayer is host-only: the target is notified with a distinct kicked
// signal, removed without any grace period, and force-disconnected.
// Kicking the host is not prevented and promotes normally.
func (s *Service) KickPlayer(hostConnID, code, targetID string) {
	s.reg.WithRoom(code, func(room *Room) error {
		if room.HostID != hostConnID {
			return nil
		}
		idx := room.playerIndexByConn(targetID)
		if idx == -1 {
			return nil
		}
		name := room.Players[idx].Name

		s.out.ToConn(targetID, ws.NewMessage(ws.TypeKicked, nil))
		s.removePlayerLocked(room, idx, fmt.Sprintf("%s was kicked by the host.", name))
		s.out.CloseConn(targetID)

		s.logger.Info().Str("room", code).Str("name", name).
			Str("conn_id", targetID).Str("host", hostConnID).Msg("player kicked")
		return nil
	})
}

// HandleDisconnect starts the grace protocol for a transport-level drop:
// the seat and score are held for the grace window pending reconnection.
func (s *Service) HandleDisconnect(connID string) {
	s.reg.WithRoomOf(connID, func(room *Room) error {
		p := room.playerByConn(connID)
		if p == nil || p.Disconnected {
			return nil
		}

		p.Disconnected = true
		p.DisconnectedAt = time.Now()
		p.graceTimer = time.AfterFunc(s.cfg.DisconnectGrace, func() {
			s.expireGrace(room.Code, connID)
		})

		s.out.ToRoom(room.Code, ws.NewMessage(ws.TypeUsersUpdated, room.Views()))
		s.systemChat(room.Code, fmt.Sprintf("%s lost connection.", p.Name))

		s.logger.Info().Str("room", room.Code).Str("name", p.Name).
			Str("conn_id", connID).Dur("grace", s.cfg.DisconnectGrace).Msg("player disconnected, grace started")
		return nil
	})
}

// expireGrace performs the real removal when the grace window elapses
// without a reconnection. A reconnect rebinds the seat to a new connection
// id, so a stale timer no longer finds its player and becomes a no-op.
func (s *Service) expireGrace(code, connID string) {
	s.reg.WithRoom(code, func(room *Room) error {
		idx := room.playerIndexByConn(connID)
		if idx == -1 || !room.Players[idx].Disconnected {
			return nil
		}
		name := room.Players[idx].Name
		s.removePlayerLocked(room, idx, fmt.Sprintf("%s left the room.", name))
		s.logger.Info().Str("room", code).Str("name", name).Str("conn_id", connID).Msg("grace period expired")
		return nil
	})
}

// removePlayerLocked deletes a seat, broadcasts the roster, deletes the
// room when it empties, and promotes the longest-tenured remaining player
// when the host seat was removed. Caller holds the registry lock.
func (s *Service) removePlayerLocked(room *Room, idx int, chatText string) {
	p := room.Players[idx]
	p.cancelGrace()
	room.Players = append(room.Players[:idx], room.Players[idx+1:]...)
	s.reg.unbindLocked(p.ConnID)
	s.out.LeaveRoom(room.Code, p.ConnID)
	s.metrics.PlayersConnected.Dec()

	if len(room.Players) == 0 {
		room.cancelRoundTimers()
		s.reg.deleteRoomLocked(room.Code)
		s.metrics.RoomsOpen.Dec()
		return
	}

	s.out.ToRoom(room.Code, ws.NewMessage(ws.TypeUsersUpdated, room.Views()))
	if chatText != "" {
		s.systemChat(room.Code, chatText)
	}

	if room.HostID == p.ConnID {
		next := room.Players[0]
		room.HostID = next.ConnID
		s.out.ToConn(next.ConnID, ws.NewMessage(ws.TypeHostStatus, true))
		s.systemChat(room.Code, fmt.Sprintf("%s is now the host.", next.Name))
		s.logger.Info().Str("room", room.Code).Str("name", next.Name).Msg("host promoted")
	}
}

func (s *Service) systemChat(code, text string) {
	s.out.ToRoom(code, ws.NewMessage(ws.TypeReceiveMessage, ws.ChatPayload{User: "System", Text: text}))
}

func (s *Service) sendError(connID string, err error) {
	if errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrGameInProgress) ||
		errors.Is(err, ErrRoomFull) || errors.Is(err, ErrTooFewPlayers) {
		s.out.ToConn(connID, ws.NewMessage(ws.TypeError, userMessage(err)))
		return
	}
	s.logger.Error().Err(err).Str("conn_id", connID).Msg("unexpected room error")
	s.out.ToConn(connID, ws.NewMessage(ws.TypeError, userMessage(err)))
}
