package token

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMarker stores used-token markers with SET NX so concurrent verifiers
// race on a single atomic command.
type RedisMarker struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisMarker(rdb *redis.Client, prefix string) *RedisMarker {
	if prefix == "" {
		prefix = "used-action-token"
	}
	return &RedisMarker{rdb: rdb, prefix: prefix}
}

func (m *RedisMarker) MarkUsed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return m.rdb.SetNX(ctx, m.prefix+":"+key, 1, ttl).Result()
}

// MemoryMarker keeps markers in process.  It is only safe for a single
// instance and is meant for tests and local runs.
type MemoryMarker struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryMarker() *MemoryMarker {
	return &MemoryMarker{entries: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryMarker) MarkUsed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if exp, ok := m.entries[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.entries[key] = now.Add(ttl)
	return true, nil
}
