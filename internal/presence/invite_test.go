package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abeloskyyy/answer/internal/metrics"
	"github.com/abeloskyyy/answer/pkg/http/ws"
)

type stubSender struct {
	mu   sync.Mutex
	sent map[string][]ws.Message
	fail bool
}

func (s *stubSender) ToConn(connID string, msg ws.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("connection gone")
	}
	if s.sent == nil {
		s.sent = make(map[string][]ws.Message)
	}
	s.sent[connID] = append(s.sent[connID], msg)
	return nil
}

func (s *stubSender) sentTo(connID string) []ws.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[connID]
}

type stubNotifier struct {
	mu     sync.Mutex
	pushes []string
}

func (n *stubNotifier) Push(_ context.Context, targetPersistentID, fromName, roomCode string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, targetPersistentID)
	return nil
}

func (n *stubNotifier) pushCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pushes)
}

func newTestRelay(sender *stubSender, notifier *stubNotifier) (*Relay, *MemoryDirectory) {
	dir := NewMemoryDirectory()
	m := metrics.New(prometheus.NewRegistry())
	return NewRelay(dir, sender, notifier, m, zerolog.Nop()), dir
}

func TestInviteLiveTarget(t *testing.T) {
	sender := &stubSender{}
	notifier := &stubNotifier{}
	relay, dir := newTestRelay(sender, notifier)

	require.NoError(t, dir.Register(context.Background(), "uuid-bob", "conn-bob"))

	relay.Invite(context.Background(), "Alice", "uuid-bob", "ABC123")

	msgs := sender.sentTo("conn-bob")
	require.Len(t, msgs, 1)
	assert.Equal(t, ws.TypeReceiveInvite, msgs[0].Type)
	assert.JSONEq(t, `{"from":"Alice","roomId":"ABC123"}`, string(msgs[0].Payload))
	assert.Zero(t, notifier.pushCount())
}

func TestInviteOfflineTargetFallsBackToPush(t *testing.T) {
	sender := &stubSender{}
	notifier := &stubNotifier{}
	relay, _ := newTestRelay(sender, notifier)

	relay.Invite(context.Background(), "Alice", "uuid-ghost", "ABC123")

	assert.Eventually(t, func() bool {
		return notifier.pushCount() == 1
	}, time.Second, time.Millisecond)
	assert.Empty(t, sender.sentTo("conn-ghost"))
}

func TestInviteSendFailureFallsBackToPush(t *testing.T) {
	sender := &stubSender{fail: true}
	notifier := &stubNotifier{}
	relay, dir := newTestRelay(sender, notifier)

	require.NoError(t, dir.Register(context.Background(), "uuid-bob", "conn-bob"))

	relay.Invite(context.Background(), "Alice", "uuid-bob", "ABC123")

	assert.Eventually(t, func() bool {
		return notifier.pushCount() == 1
	}, time.Second, time.Millisecond)
}

func TestMemoryDirectoryLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	conn, err := dir.Lookup(ctx, "uuid-bob")
	require.NoError(t, err)
	assert.Empty(t, conn, "unknown identity is simply offline")

	require.NoError(t, dir.Register(ctx, "uuid-bob", "conn-1"))
	conn, _ = dir.Lookup(ctx, "uuid-bob")
	assert.Equal(t, "conn-1", conn)

	// A fresh login supersedes the old connection.
	require.NoError(t, dir.Register(ctx, "uuid-bob", "conn-2"))
	conn, _ = dir.Lookup(ctx, "uuid-bob")
	assert.Equal(t, "conn-2", conn)

	// Unregistering the superseded connection must not evict the new one.
	require.NoError(t, dir.UnregisterConn(ctx, "conn-1"))
	conn, _ = dir.Lookup(ctx, "uuid-bob")
	assert.Equal(t, "conn-2", conn)

	require.NoError(t, dir.UnregisterConn(ctx, "conn-2"))
	conn, _ = dir.Lookup(ctx, "uuid-bob")
	assert.Empty(t, conn)
}
