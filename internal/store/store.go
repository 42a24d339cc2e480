package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scouthq/scout/config"
	"github.com/scouthq/scout/internal/agent/core"
)

// ErrRunNotFound is returned when a run id has no stored record.
var ErrRunNotFound = errors.New("run not found")

// Conn opens and pings a redis connection.
func Conn(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		DialTimeout: timeout,
		Password:    cfg.Password,
		DB:          cfg.DB,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	if pong != "PONG" {
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

// NewRunStore builds the configured run store. An empty redis host
// selects the in-memory store; the returned client is nil in that
// case and callers fall back to in-process locking.
func NewRunStore(ctx context.Context, cfg config.StorageConfig) (core.RunStore, *redis.Client, error) {
	if cfg.Redis.Host == "" {
		return NewInMemoryRunStore(), nil, nil
	}
	client, err := Conn(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	return NewRedisRunStore(client), client, nil
}
