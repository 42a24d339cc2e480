package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/scouthq/scout/internal/agent/core"
	"github.com/scouthq/scout/internal/store"
)

// Scheduler re-runs saved topics on their cron cadence. The locker
// keeps a topic from double-firing when several replicas tick at once.
type Scheduler struct {
	Topics   store.TopicStore
	Locker   store.Locker
	Orch     *core.Orchestrator
	Interval time.Duration
	Stop     chan struct{}

	logger *log.Logger
}

func (s *Scheduler) Start() {
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	interval := s.Interval
	if interval == 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	topics, err := s.Topics.ListTopics(ctx)
	if err != nil {
		s.logger.Printf("listing topics: %v", err)
		return
	}
	for _, t := range topics {
		if !isDue(t.Cron, t.LastRunAt) {
			continue
		}
		ok, err := s.Locker.TryLock(ctx, "sched:"+t.ID, 2*time.Minute)
		if err != nil || !ok {
			continue
		}

		now := time.Now()
		t.LastRunAt = &now
		if err := s.Topics.SaveTopic(ctx, t); err != nil {
			s.logger.Printf("updating topic %s: %v", t.ID, err)
			continue
		}

		go func(topic store.Topic) {
			// jitter to avoid stampedes
			time.Sleep(time.Duration(250+time.Now().UnixNano()%250) * time.Millisecond)
			req := core.ResearchRequest{
				Query:          topic.Query,
				Timestamp:      time.Now(),
				SkipClarify:    true, // nobody is around to answer
				RecipientEmail: topic.RecipientEmail,
			}
			runCtx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
			defer cancel()
			for range s.Orch.Run(runCtx, req) {
				// drain; run records land in the store
			}
			s.logger.Printf("scheduled run for topic %s finished", topic.ID)
		}(t)
	}
}

// isDue determines if a topic with cronSpec should run now based on
// its last run time. Supports "@daily", "@hourly", and standard
// 5-field cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// treat an invalid expression as @daily
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
