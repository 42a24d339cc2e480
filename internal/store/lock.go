package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker provides the mutual exclusion the scheduler needs so a topic
// fires once per tick even with several server replicas.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type redisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) Locker {
	return redisLocker{client: client}
}

func (l redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, "lock:"+key, 1, ttl).Result()
}

// memoryLocker is the single-process fallback.
type memoryLocker struct {
	mu    sync.Mutex
	holds map[string]time.Time
}

func NewMemoryLocker() Locker {
	return &memoryLocker{holds: make(map[string]time.Time)}
}

func (l *memoryLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if until, ok := l.holds[key]; ok && now.Before(until) {
		return false, nil
	}
	l.holds[key] = now.Add(ttl)
	return true, nil
}

// NewLocker selects the locker matching the run store backend.
func NewLocker(client *redis.Client) Locker {
	if client == nil {
		return NewMemoryLocker()
	}
	return NewRedisLocker(client)
}
