package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/scouthq/scout/internal/agent/core"
)

const runKeyPrefix = "run:"

// redisRunStore persists run records as JSON blobs keyed by run id.
type redisRunStore struct {
	client *redis.Client
}

func NewRedisRunStore(client *redis.Client) core.RunStore {
	return redisRunStore{client: client}
}

func (r redisRunStore) SaveRun(ctx context.Context, rec core.RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, runKeyPrefix+rec.ID, data, 0).Err()
}

func (r redisRunStore) GetRun(ctx context.Context, id string) (core.RunRecord, error) {
	val, err := r.client.Get(ctx, runKeyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.RunRecord{}, ErrRunNotFound
		}
		return core.RunRecord{}, err
	}
	var rec core.RunRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return core.RunRecord{}, err
	}
	return rec, nil
}

func (r redisRunStore) ListRuns(ctx context.Context) ([]core.RunRecord, error) {
	keys, err := r.client.Keys(ctx, runKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}
	var runs []core.RunRecord
	for _, key := range keys {
		val, err := r.client.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // deleted between KEYS and GET
			}
			return nil, err
		}
		var rec core.RunRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}
