package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/scouthq/scout/config"
)

// Telemetry tracks pipeline metrics and LLM spend.
type Telemetry struct {
	config  config.TelemetryConfig
	logger  *log.Logger
	mu      sync.RWMutex
	metrics Metrics
	costs   CostTracker
}

// Metrics holds aggregate pipeline counters.
type Metrics struct {
	RunsStarted    int64
	RunsSucceeded  int64
	RunsFailed     int64
	RunsCancelled  int64
	TotalRunTime   time.Duration
	SearchesRun    int64
	SearchesFailed int64

	// Per-stage model call counts and latencies.
	ModelCalls     map[string]int64
	ModelCallTime  map[string]time.Duration
	ModelCallFails map[string]int64
}

// CostTracker accumulates token usage and estimated spend per model.
type CostTracker struct {
	ModelTokens map[string]int64
	ModelCosts  map[string]float64
	TotalTokens int64
	TotalCost   float64
}

// RunEvent summarises one completed pipeline run.
type RunEvent struct {
	RunID     string
	Query     string
	Duration  time.Duration
	Succeeded bool
	Cancelled bool
	Searches  int
	Failures  int
}

// ModelCallEvent records one LLM invocation.
type ModelCallEvent struct {
	Stage    string // clarify, plan, search, write
	Model    string
	Duration time.Duration
	Success  bool
	Tokens   int64
	Cost     float64
}

func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	return &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: Metrics{
			ModelCalls:     make(map[string]int64),
			ModelCallTime:  make(map[string]time.Duration),
			ModelCallFails: make(map[string]int64),
		},
		costs: CostTracker{
			ModelTokens: make(map[string]int64),
			ModelCosts:  make(map[string]float64),
		},
	}
}

// RecordRunStart bumps the started-run counter.
func (t *Telemetry) RecordRunStart() {
	if !t.config.Enabled {
		return
	}
	t.mu.Lock()
	t.metrics.RunsStarted++
	t.mu.Unlock()
}

// RecordRunEvent records a finished run.
func (t *Telemetry) RecordRunEvent(ev RunEvent) {
	if !t.config.Enabled {
		return
	}
	t.mu.Lock()
	switch {
	case ev.Cancelled:
		t.metrics.RunsCancelled++
	case ev.Succeeded:
		t.metrics.RunsSucceeded++
	default:
		t.metrics.RunsFailed++
	}
	t.metrics.TotalRunTime += ev.Duration
	t.metrics.SearchesRun += int64(ev.Searches)
	t.metrics.SearchesFailed += int64(ev.Failures)
	t.mu.Unlock()

	t.logger.Printf("run %s finished in %v (searches=%d failures=%d success=%v)",
		ev.RunID, ev.Duration, ev.Searches, ev.Failures, ev.Succeeded)
}

// RecordModelCall records one LLM invocation and its spend.
func (t *Telemetry) RecordModelCall(ev ModelCallEvent) {
	if !t.config.Enabled {
		return
	}
	t.mu.Lock()
	t.metrics.ModelCalls[ev.Stage]++
	t.metrics.ModelCallTime[ev.Stage] += ev.Duration
	if !ev.Success {
		t.metrics.ModelCallFails[ev.Stage]++
	}
	if t.config.CostTracking {
		t.costs.ModelTokens[ev.Model] += ev.Tokens
		t.costs.ModelCosts[ev.Model] += ev.Cost
		t.costs.TotalTokens += ev.Tokens
		t.costs.TotalCost += ev.Cost
	}
	t.mu.Unlock()
}

// Snapshot returns a deep copy of the current counters.
func (t *Telemetry) Snapshot() (Metrics, CostTracker) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := t.metrics
	m.ModelCalls = make(map[string]int64, len(t.metrics.ModelCalls))
	m.ModelCallTime = make(map[string]time.Duration, len(t.metrics.ModelCallTime))
	m.ModelCallFails = make(map[string]int64, len(t.metrics.ModelCallFails))
	for k, v := range t.metrics.ModelCalls {
		m.ModelCalls[k] = v
	}
	for k, v := range t.metrics.ModelCallTime {
		m.ModelCallTime[k] = v
	}
	for k, v := range t.metrics.ModelCallFails {
		m.ModelCallFails[k] = v
	}

	c := t.costs
	c.ModelTokens = make(map[string]int64, len(t.costs.ModelTokens))
	c.ModelCosts = make(map[string]float64, len(t.costs.ModelCosts))
	for k, v := range t.costs.ModelTokens {
		c.ModelTokens[k] = v
	}
	for k, v := range t.costs.ModelCosts {
		c.ModelCosts[k] = v
	}

	return m, c
}
