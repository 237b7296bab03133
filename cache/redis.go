// cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"buddy-vitality-service/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "buddy:snapshot:"

// SnapshotKey is the redis key holding an owner's latest buddy.
func SnapshotKey(ownerID string) string {
	return keyPrefix + ownerID
}

// RedisSnapshotCache stores buddy snapshots as JSON with a TTL.
type RedisSnapshotCache struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewRedisSnapshotCache connects and pings; a failed ping is returned so the
// caller can fall back to running without a cache.
func NewRedisSnapshotCache(ctx context.Context, addr string, ttl time.Duration, logger *zap.Logger) (*RedisSnapshotCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("redis_connection_failed",
			zap.Error(err),
			zap.String("addr", addr),
		)
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis_connected",
		zap.String("addr", addr),
	)
	return &RedisSnapshotCache{Client: client, TTL: ttl}, nil
}

func (c *RedisSnapshotCache) Put(ctx context.Context, b models.Buddy) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	return c.Client.Set(ctx, SnapshotKey(b.OwnerID), data, c.TTL).Err()
}

func (c *RedisSnapshotCache) Get(ctx context.Context, ownerID string) (models.Buddy, bool, error) {
	val, err := c.Client.Get(ctx, SnapshotKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Buddy{}, false, nil
	} else if err != nil {
		return models.Buddy{}, false, fmt.Errorf("cache get failed: %w", err)
	}

	var b models.Buddy
	if err := json.Unmarshal(val, &b); err != nil {
		return models.Buddy{}, false, fmt.Errorf("cache unmarshal failed: %w", err)
	}
	return b, true, nil
}

func (c *RedisSnapshotCache) Invalidate(ctx context.Context, ownerID string) error {
	return c.Client.Del(ctx, SnapshotKey(ownerID)).Err()
}

func (c *RedisSnapshotCache) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// MemorySnapshotCache is the in-process stand-in used when redis is not configured.
type MemorySnapshotCache struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	ttl     time.Duration
	now     func() time.Time
}

type memEntry struct {
	buddy   models.Buddy
	expires time.Time
}

func NewMemorySnapshotCache(ttl time.Duration) *MemorySnapshotCache {
	return &MemorySnapshotCache{entries: make(map[string]memEntry), ttl: ttl, now: time.Now}
}

func (c *MemorySnapshotCache) Put(_ context.Context, b models.Buddy) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var exp time.Time
	if c.ttl > 0 {
		exp = c.now().Add(c.ttl)
	}
	c.entries[b.OwnerID] = memEntry{buddy: b, expires: exp}
	return nil
}

func (c *MemorySnapshotCache) Get(_ context.Context, ownerID string) (models.Buddy, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[ownerID]
	if !ok || (!e.expires.IsZero() && c.now().After(e.expires)) {
		return models.Buddy{}, false, nil
	}
	return e.buddy, true, nil
}

func (c *MemorySnapshotCache) Invalidate(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ownerID)
	return nil
}
