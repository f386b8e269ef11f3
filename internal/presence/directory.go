package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Directory maps persistent player identities to live connection ids. It
// is consulted only to route friend invites, never for room membership.
type Directory interface {
	Register(ctx context.Context, persistentID, connID string) error
	UnregisterConn(ctx context.Context, connID string) error
	// Lookup returns the live connection id for an identity, or "" when
	// the player has no live connection.
	Lookup(ctx context.Context, persistentID string) (string, error)
}

// MemoryDirectory is the in-process directory used when no Redis address
// is configured, and in tests.
type MemoryDirectory struct {
	mu     sync.RWMutex
	byID   map[string]string
	byConn map[string]string
}

// NewMemoryDirectory creates an empty in-process directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:   make(map[string]string),
		byConn: make(map[string]string),
	}
}

func (d *MemoryDirectory) Register(_ context.Context, persistentID, connID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.byID[persistentID]; ok {
		delete(d.byConn, old)
	}
	d.byID[persistentID] = connID
	d.byConn[connID] = persistentID
	return nil
}

func (d *MemoryDirectory) UnregisterConn(_ context.Context, connID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.byConn[connID]; ok {
		delete(d.byConn, connID)
		if d.byID[id] == connID {
			delete(d.byID, id)
		}
	}
	return nil
}

func (d *MemoryDirectory) Lookup(_ context.Context, persistentID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byID[persistentID], nil
}

// presenceTTL is a safety net against leaked keys; registrations are
// refreshed on every login.
const presenceTTL = 12 * time.Hour

// RedisDirectory shares the identity map across processes that route
// invites for the same player base.
type RedisDirectory struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedisDirectory creates a directory backed by Redis.
func NewRedisDirectory(client *redis.Client, logger zerolog.Logger) *RedisDirectory {
	return &RedisDirectory{redis: client, logger: logger}
}

func idKey(persistentID string) string { return fmt.Sprintf("presence:id:%s", persistentID) }
func connKey(connID string) string     { return fmt.Sprintf("presence:conn:%s", connID) }

func (d *RedisDirectory) Register(ctx context.Context, persistentID, connID string) error {
	pipe := d.redis.TxPipeline()
	pipe.Set(ctx, idKey(persistentID), connID, presenceTTL)
	pipe.Set(ctx, connKey(connID), persistentID, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register presence: %w", err)
	}
	return nil
}

func (d *RedisDirectory) UnregisterConn(ctx context.Context, connID string) error {
	persistentID, err := d.redis.Get(ctx, connKey(connID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve presence conn: %w", err)
	}

	pipe := d.redis.TxPipeline()
	pipe.Del(ctx, connKey(connID))
	// Only drop the identity mapping if it still points at this connection.
	if current, err := d.redis.Get(ctx, idKey(persistentID)).Result(); err == nil && current == connID {
		pipe.Del(ctx, idKey(persistentID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unregister presence: %w", err)
	}
	return nil
}

func (d *RedisDirectory) Lookup(ctx context.Context, persistentID string) (string, error) {
	connID, err := d.redis.Get(ctx, idKey(persistentID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup presence: %w", err)
	}
	return connID, nil
}
