package store

import (
	"context"
	"sort"
	"sync"

	"github.com/scouthq/scout/internal/agent/core"
)

// inMemoryRunStore keeps run records in process memory. Used when no
// redis host is configured; history is lost on restart.
type inMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]core.RunRecord
}

func NewInMemoryRunStore() core.RunStore {
	return &inMemoryRunStore{runs: make(map[string]core.RunRecord)}
}

func (s *inMemoryRunStore) SaveRun(ctx context.Context, rec core.RunRecord) error {
	s.mu.Lock()
	s.runs[rec.ID] = rec
	s.mu.Unlock()
	return nil
}

func (s *inMemoryRunStore) GetRun(ctx context.Context, id string) (core.RunRecord, error) {
	s.mu.RLock()
	rec, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return core.RunRecord{}, ErrRunNotFound
	}
	return rec, nil
}

func (s *inMemoryRunStore) ListRuns(ctx context.Context) ([]core.RunRecord, error) {
	s.mu.RLock()
	runs := make([]core.RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		runs = append(runs, rec)
	}
	s.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}
