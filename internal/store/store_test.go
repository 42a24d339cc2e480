package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scouthq/scout/internal/agent/core"
)

func TestInMemoryRunStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryRunStore()

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}

	rec := core.RunRecord{ID: "r1", Query: "q", Status: "succeeded", StartedAt: time.Now()}
	if err := s.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	got, err := s.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Query != "q" || got.Status != "succeeded" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestInMemoryRunStoreListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryRunStore()
	base := time.Now()
	_ = s.SaveRun(ctx, core.RunRecord{ID: "old", StartedAt: base.Add(-time.Hour)})
	_ = s.SaveRun(ctx, core.RunRecord{ID: "new", StartedAt: base})

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "old" {
		t.Fatalf("wrong order: %+v", runs)
	}
}

func TestInMemoryTopicStore(t *testing.T) {
	ctx := context.Background()
	s := NewTopicStore(nil)

	topic := Topic{ID: "t1", Query: "q", Cron: "@daily", CreatedAt: time.Now()}
	if err := s.SaveTopic(ctx, topic); err != nil {
		t.Fatalf("SaveTopic failed: %v", err)
	}
	got, err := s.GetTopic(ctx, "t1")
	if err != nil || got.Query != "q" {
		t.Fatalf("GetTopic: %+v, %v", got, err)
	}
	if err := s.DeleteTopic(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTopic failed: %v", err)
	}
	if err := s.DeleteTopic(ctx, "t1"); !errors.Is(err, ErrTopicNotFound) {
		t.Fatalf("expected ErrTopicNotFound, got %v", err)
	}
}

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	ok, err := l.TryLock(ctx, "k", 50*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("first TryLock: %v %v", ok, err)
	}
	ok, _ = l.TryLock(ctx, "k", 50*time.Millisecond)
	if ok {
		t.Fatal("second TryLock should fail while held")
	}
	time.Sleep(60 * time.Millisecond)
	ok, _ = l.TryLock(ctx, "k", 50*time.Millisecond)
	if !ok {
		t.Fatal("lock should be reacquirable after expiry")
	}
}
