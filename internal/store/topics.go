package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTopicNotFound is returned when a topic id has no stored record.
var ErrTopicNotFound = errors.New("topic not found")

// Topic is a saved research query that the scheduler re-runs on a cron
// expression.
type Topic struct {
	ID             string     `json:"id"`
	Query          string     `json:"query"`
	Cron           string     `json:"cron"`
	RecipientEmail string     `json:"recipient_email,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
}

// TopicStore persists scheduled topics.
type TopicStore interface {
	SaveTopic(ctx context.Context, topic Topic) error
	GetTopic(ctx context.Context, id string) (Topic, error)
	ListTopics(ctx context.Context) ([]Topic, error)
	DeleteTopic(ctx context.Context, id string) error
}

// NewTopicStore selects the backend matching the run store.
func NewTopicStore(client *redis.Client) TopicStore {
	if client == nil {
		return &inMemoryTopicStore{topics: make(map[string]Topic)}
	}
	return redisTopicStore{client: client}
}

const topicKeyPrefix = "topic:"

type redisTopicStore struct {
	client *redis.Client
}

func (r redisTopicStore) SaveTopic(ctx context.Context, topic Topic) error {
	data, err := json.Marshal(topic)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, topicKeyPrefix+topic.ID, data, 0).Err()
}

func (r redisTopicStore) GetTopic(ctx context.Context, id string) (Topic, error) {
	val, err := r.client.Get(ctx, topicKeyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Topic{}, ErrTopicNotFound
		}
		return Topic{}, err
	}
	var topic Topic
	if err := json.Unmarshal([]byte(val), &topic); err != nil {
		return Topic{}, err
	}
	return topic, nil
}

func (r redisTopicStore) ListTopics(ctx context.Context) ([]Topic, error) {
	keys, err := r.client.Keys(ctx, topicKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}
	var topics []Topic
	for _, key := range keys {
		val, err := r.client.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		var topic Topic
		if err := json.Unmarshal([]byte(val), &topic); err != nil {
			return nil, err
		}
		topics = append(topics, topic)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].CreatedAt.Before(topics[j].CreatedAt) })
	return topics, nil
}

func (r redisTopicStore) DeleteTopic(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, topicKeyPrefix+id).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTopicNotFound
	}
	return nil
}

type inMemoryTopicStore struct {
	mu     sync.RWMutex
	topics map[string]Topic
}

func (s *inMemoryTopicStore) SaveTopic(ctx context.Context, topic Topic) error {
	s.mu.Lock()
	s.topics[topic.ID] = topic
	s.mu.Unlock()
	return nil
}

func (s *inMemoryTopicStore) GetTopic(ctx context.Context, id string) (Topic, error) {
	s.mu.RLock()
	topic, ok := s.topics[id]
	s.mu.RUnlock()
	if !ok {
		return Topic{}, ErrTopicNotFound
	}
	return topic, nil
}

func (s *inMemoryTopicStore) ListTopics(ctx context.Context) ([]Topic, error) {
	s.mu.RLock()
	topics := make([]Topic, 0, len(s.topics))
	for _, t := range s.topics {
		topics = append(topics, t)
	}
	s.mu.RUnlock()
	sort.Slice(topics, func(i, j int) bool { return topics[i].CreatedAt.Before(topics[j].CreatedAt) })
	return topics, nil
}

func (s *inMemoryTopicStore) DeleteTopic(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[id]; !ok {
		return ErrTopicNotFound
	}
	delete(s.topics, id)
	return nil
}
