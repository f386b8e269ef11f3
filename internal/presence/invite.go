package presence

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/abeloskyyy/answer/internal/metrics"
	"github.com/abeloskyyy/answer/pkg/http/ws"
)

// Sender delivers wire messages to live connections.
type Sender interface {
	ToConn(connID string, msg ws.Message) error
}

// Notifier pushes an invite to a player without a live connection. The
// real implementation lives in the friends/notification subsystem; the
// room engine only needs the fire-and-forget contract.
type Notifier interface {
	Push(ctx context.Context, targetPersistentID, fromName, roomCode string) error
}

// LogNotifier is the default Notifier: it records the invite and drops it.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Push(_ context.Context, targetPersistentID, fromName, roomCode string) error {
	n.Logger.Info().Str("target", targetPersistentID).Str("from", fromName).
		Str("room", roomCode).Msg("push invite (no live connection)")
	return nil
}

// Relay routes friend invites: live targets get a receive_invite event,
// offline targets fall back to the push notifier.
type Relay struct {
	dir      Directory
	sender   Sender
	notifier Notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewRelay creates an invite relay.
func NewRelay(dir Directory, sender Sender, notifier Notifier, m *metrics.Metrics, logger zerolog.Logger) *Relay {
	return &Relay{
		dir:      dir,
		sender:   sender,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// Invite delivers an invite from fromName to the identified target. The
// push fallback runs in its own goroutine so a slow notification backend
// can never stall round timing.
func (r *Relay) Invite(ctx context.Context, fromName, targetPersistentID, roomCode string) {
	connID, err := r.dir.Lookup(ctx, targetPersistentID)
	if err != nil {
		r.logger.Warn().Err(err).Str("target", targetPersistentID).Msg("presence lookup failed")
		return
	}

	if connID != "" {
		payload := ws.ReceiveInvitePayload{From: fromName, RoomID: roomCode}
		if err := r.sender.ToConn(connID, ws.NewMessage(ws.TypeReceiveInvite, payload)); err == nil {
			r.metrics.InvitesRelayed.WithLabelValues("socket").Inc()
			return
		}
		// Connection went away between lookup and send; fall through to push.
	}

	go func() {
		if err := r.notifier.Push(context.Background(), targetPersistentID, fromName, roomCode); err != nil {
			r.logger.Warn().Err(err).Str("target", targetPersistentID).Msg("invite push failed")
			return
		}
		r.metrics.InvitesRelayed.WithLabelValues("push").Inc()
	}()
}
