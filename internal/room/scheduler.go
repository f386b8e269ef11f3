package room

import (
	"errors"
	"sort"
	"time"

	"github.com/abeloskyyy/answer/internal/mode"
	"github.com/abeloskyyy/answer/pkg/http/ws"
)

// StartGame begins a game from Waiting or Finished state. Host-only; a
// non-host trigger is silently ignored, a solo start gets an error event.
// Scores reset, then round 1 starts after the client countdown animation.
func (s *Service) StartGame(connID, code string) {
	err := s.reg.WithRoom(code, func(room *Room) error {
		if room.HostID != connID {
			return nil
		}
		if room.State == StatePlaying {
			return nil
		}
		if len(room.Players) < 2 {
			return ErrTooFewPlayers
		}

		room.cancelRoundTimers()
		room.State = StatePlaying
		room.CurrentRound = 0
		room.Question = nil
		for _, p := range room.Players {
			p.Score = 0
		}

		s.out.ToRoom(code, ws.NewMessage(ws.TypeUsersUpdated, room.Views()))
		s.out.ToRoom(code, ws.NewMessage(ws.TypeGameStarted, nil))

		room.countdownTimer = time.AfterFunc(s.cfg.StartCountdown, func() {
			s.startRound(code)
		})

		s.logger.Info().Str("room", code).Str("host", connID).
			Str("mode", s.activeMode(room).Key()).Msg("game started")
		return nil
	})
	// A start against a vanished room aborts silently like the other
	// privileged operations; only the solo-start rejection is user-visible.
	if err != nil && !errors.Is(err, ErrRoomNotFound) {
		s.sendError(connID, err)
	}
}

// startRound advances the round counter, finishing the game once the
// configured round count is exhausted, otherwise dealing a new question
// and arming the per-second countdown.
func (s *Service) startRound(code string) {
	s.reg.WithRoom(code, func(room *Room) error {
		if room.State != StatePlaying {
			return nil
		}

		room.CurrentRound++
		if room.CurrentRound > room.Settings.Rounds {
			s.finishGameLocked(room)
			return nil
		}

		m := s.activeMode(room)
		room.RoundMode = m
		room.Question = m.Generate(room.Settings.Difficulty)
		room.RoundAnswers = make(map[string]mode.Submission)
		room.RoundStart = time.Now()

		payload := map[string]any{
			"round":       room.CurrentRound,
			"totalRounds": room.Settings.Rounds,
			"time":        room.Settings.TimePerRound,
			"startTime":   room.RoundStart.UnixMilli(),
		}
		for k, v := range room.Question.Payload() {
			payload[k] = v
		}
		s.out.ToRoom(code, ws.NewMessage(ws.TypeNewRound, payload))

		ticker := newRoundTicker()
		room.roundTicker = ticker
		go s.runCountdown(code, room.CurrentRound, room.Settings.TimePerRound, ticker)

		s.logger.Info().Str("room", code).Int("round", room.CurrentRound).
			Str("mode", m.Key()).Msg("round started")
		return nil
	})
}

// runCountdown ticks the round clock down and concludes the round when it
// reaches zero, unless the all-answered fast path stopped it first.
func (s *Service) runCountdown(code string, round, seconds int, t *roundTicker) {
	ticker := time.NewTicker(s.cfg.RoundTick)
	defer ticker.Stop()

	remaining := seconds
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			remaining--
			if remaining <= 0 {
				s.concludeRound(code, round)
				return
			}
		}
	}
}

// SubmitAnswer records a player's answer exactly once per round, stamped
// with server time. The round concludes early once every seat has answered.
func (s *Service) SubmitAnswer(connID, code, rawValue string) {
	s.reg.WithRoom(code, func(room *Room) error {
		if room.State != StatePlaying || room.Question == nil {
			return nil
		}
		if room.playerByConn(connID) == nil {
			return nil
		}
		if _, already := room.RoundAnswers[connID]; already {
			return nil
		}

		room.RoundAnswers[connID] = mode.Submission{Value: rawValue, At: time.Now()}
		s.out.ToConn(connID, ws.NewMessage(ws.TypeAnswerConfirmed, nil))
		s.metrics.AnswersSubmitted.WithLabelValues(room.RoundMode.Key()).Inc()

		if len(room.RoundAnswers) == len(room.Players) {
			s.concludeRoundLocked(room, room.CurrentRound)
		}
		return nil
	})
}

// concludeRound is the timer-path entry into round conclusion.
func (s *Service) concludeRound(code string, round int) {
	s.reg.WithRoom(code, func(room *Room) error {
		s.concludeRoundLocked(room, round)
		return nil
	})
}

// concludeRoundLocked scores the round, applies awards, broadcasts the
// results, and schedules the next round. Only one conclusion path can win:
// the countdown is stopped and the question cleared before results leave,
// so the losing path finds its preconditions gone and no-ops.
func (s *Service) concludeRoundLocked(room *Room, round int) {
	if room.State != StatePlaying || room.Question == nil || room.CurrentRound != round {
		return
	}

	if room.roundTicker != nil {
		room.roundTicker.Stop()
		room.roundTicker = nil
	}

	snapshot := mode.Round{
		Question:  room.Question,
		StartedAt: room.RoundStart,
		Entrants:  make([]mode.Entrant, len(room.Players)),
	}
	for i, p := range room.Players {
		entrant := mode.Entrant{ConnID: p.ConnID, Name: p.Name}
		if sub, ok := room.RoundAnswers[p.ConnID]; ok {
			entrant.Submission = &sub
		}
		snapshot.Entrants[i] = entrant
	}

	// Score with the mode that dealt the question, not the settings' current
	// one: a mid-round gameMode change must only apply from the next deal.
	result := room.RoundMode.Score(snapshot)
	for _, row := range result.Rankings {
		if p := room.playerByConn(row.ID); p != nil {
			p.Score += row.Awarded
		}
	}
	room.Question = nil

	s.out.ToRoom(room.Code, ws.NewMessage(ws.TypeRoundResult, roundResultPayload{
		Result:    result,
		StartTime: room.RoundStart.UnixMilli(),
	}))
	s.out.ToRoom(room.Code, ws.NewMessage(ws.TypeUsersUpdated, room.Views()))
	s.metrics.RoundsPlayed.WithLabelValues(result.Mode).Inc()

	room.nextRoundTimer = time.AfterFunc(s.cfg.ResultsDelay, func() {
		s.startRound(room.Code)
	})

	s.logger.Info().Str("room", room.Code).Int("round", round).
		Str("winner", result.Winner).Bool("tie", result.IsTie).Msg("round concluded")
}

// finishGameLocked emits the final ranking and leaves the room replayable.
func (s *Service) finishGameLocked(room *Room) {
	room.State = StateFinished
	room.Question = nil
	room.cancelRoundTimers()

	final := room.Views()
	sort.SliceStable(final, func(i, j int) bool { return final[i].Score > final[j].Score })
	s.out.ToRoom(room.Code, ws.NewMessage(ws.TypeGameOver, final))
	s.metrics.GamesFinished.Inc()

	if len(final) > 0 {
		s.logger.Info().Str("room", room.Code).Str("winner", final[0].Name).
			Int("score", final[0].Score).Msg("game over")
	}
}

func (s *Service) activeMode(room *Room) mode.Mode {
	return s.modes.Get(room.Settings.GameMode)
}

// roundResultPayload adds the server round start to the mode result so
// clients can render response speeds from a shared clock.
type roundResultPayload struct {
	mode.Result
	StartTime int64 `json:"startTime"`
}
