package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/scouthq/scout/config"
	"github.com/scouthq/scout/internal/agent/telemetry"
)

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Routing: config.LLMRoutingConfig{
				Clarify:   "clarify-model",
				Planning:  "plan-model",
				Research:  "search-model",
				Synthesis: "write-model",
				Guardrail: "guard-model",
			},
		},
		Agents: config.AgentsConfig{
			MaxSearchTasks:        5,
			ClarifyQuestions:      0,
			MaxConcurrentSearches: 3,
			SearchTimeout:         5 * time.Second,
			StageTimeout:          10 * time.Second,
		},
		Search: config.SearchConfig{MaxResults: 3},
	}
}

// fakeLLM routes canned responses by model name.
type fakeLLM struct {
	mu        sync.Mutex
	responses map[string]string
	errors    map[string]error
	calls     []string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt, model string, options map[string]interface{}) (string, error) {
	resp, _, _, err := f.GenerateWithTokens(ctx, prompt, model, options)
	return resp, err
}

func (f *fakeLLM) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, model)
	f.mu.Unlock()
	if err := f.errors[model]; err != nil {
		return "", 0, 0, err
	}
	return f.responses[model], 10, 10, nil
}

func (f *fakeLLM) CalculateCost(inputTokens, outputTokens int64, model string) float64 { return 0 }

type fakeSearcher struct {
	failGoals map[string]bool
	hangGoals map[string]bool
}

func (f fakeSearcher) Discover(ctx context.Context, q string, k int) ([]WebResult, error) {
	if f.hangGoals[q] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.failGoals[q] {
		return nil, fmt.Errorf("backend down")
	}
	return []WebResult{{Title: "hit for " + q, URL: "https://example.com/" + q, Snippet: "snippet"}}, nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *recordingNotifier) Notify(ctx context.Context, summary string) error {
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
	return nil
}

type memStore struct {
	mu   sync.Mutex
	runs map[string]RunRecord
}

func newMemStore() *memStore { return &memStore{runs: make(map[string]RunRecord)} }

func (s *memStore) SaveRun(ctx context.Context, rec RunRecord) error {
	s.mu.Lock()
	s.runs[rec.ID] = rec
	s.mu.Unlock()
	return nil
}

func (s *memStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id], nil
}

func (s *memStore) ListRuns(ctx context.Context) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunRecord, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	return out, nil
}

func planJSON(goals ...string) string {
	type item struct {
		Goal      string `json:"goal"`
		Rationale string `json:"rationale"`
	}
	items := make([]item, 0, len(goals))
	for _, g := range goals {
		items = append(items, item{Goal: g, Rationale: "because"})
	}
	b, _ := json.Marshal(map[string]any{"searches": items})
	return string(b)
}

const writeResp = `{"short_summary":"the short summary","markdown_report":"# Report\n\nBody.","follow_up_questions":["next?"]}`
const searchResp = `{"summary":"condensed findings","sources":["https://example.com/a","https://example.com/b"]}`

func newTestOrchestrator(cfg *config.Config, llm LLMProvider, deps Deps) *Orchestrator {
	if deps.LLM == nil {
		deps.LLM = llm
	}
	return NewOrchestrator(cfg, deps, telemetry.NewTelemetry(config.TelemetryConfig{}))
}

func collect(events <-chan StatusEvent) []StatusEvent {
	var out []StatusEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func stagesOf(events []StatusEvent) []Stage {
	var out []Stage
	for _, ev := range events {
		if len(out) == 0 || out[len(out)-1] != ev.Stage {
			out = append(out, ev.Stage)
		}
	}
	return out
}

func TestRunHappyPathStageOrder(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"plan-model":   planJSON("alpha", "beta", "gamma"),
		"search-model": searchResp,
		"write-model":  writeResp,
	}}
	st := newMemStore()
	orch := newTestOrchestrator(testConfig(), llm, Deps{Searcher: fakeSearcher{}, Store: st})

	events := collect(orch.Run(context.Background(), ResearchRequest{Query: "what is up"}))
	if len(events) == 0 {
		t.Fatal("no events emitted")
	}
	last := events[len(events)-1]
	if !last.Terminal || last.Stage != StageDone {
		t.Fatalf("expected terminal done event, got %+v", last)
	}
	if last.Report == nil || last.Report.Markdown != "# Report\n\nBody." {
		t.Fatalf("terminal event missing report: %+v", last.Report)
	}
	if last.Error != "" {
		t.Fatalf("done event must not carry an error, got %q", last.Error)
	}

	want := []Stage{StagePlanning, StageSearching, StageWriting, StageFinalizing, StageDone}
	got := stagesOf(events)
	if len(got) != len(want) {
		t.Fatalf("stage sequence mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stage sequence mismatch at %d: got %v want %v", i, got, want)
		}
	}
}

func TestRunFailedSearchKeepsSlot(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"plan-model":   planJSON("alpha", "beta", "gamma"),
		"search-model": searchResp,
		"write-model":  writeResp,
	}}
	st := newMemStore()
	orch := newTestOrchestrator(testConfig(), llm, Deps{Searcher: fakeSearcher{failGoals: map[string]bool{"beta": true}}, Store: st})

	events := collect(orch.Run(context.Background(), ResearchRequest{ID: "run-1", Query: "q"}))
	last := events[len(events)-1]
	if last.Stage != StageDone {
		t.Fatalf("run should succeed despite one failed search, got %v (%s)", last.Stage, last.Error)
	}

	rec, _ := st.GetRun(context.Background(), "run-1")
	if len(rec.Results) != 3 {
		t.Fatalf("expected 3 result slots, got %d", len(rec.Results))
	}
	if !rec.Results[1].Failed || rec.Results[1].Summary != PlaceholderSummary {
		t.Fatalf("slot 1 should hold the placeholder, got %+v", rec.Results[1])
	}
	if rec.Results[0].Failed || rec.Results[2].Failed {
		t.Fatalf("slots 0 and 2 should have succeeded: %+v", rec.Results)
	}
	for i, r := range rec.Results {
		if r.TaskID != i {
			t.Fatalf("result %d is out of position (task id %d)", i, r.TaskID)
		}
	}
	if rec.FailedTasks != 1 {
		t.Fatalf("expected 1 failed task, got %d", rec.FailedTasks)
	}
}

func TestRunAllSearchesFailStillWrites(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"plan-model":  planJSON("alpha", "beta"),
		"write-model": writeResp,
	}}
	orch := newTestOrchestrator(testConfig(), llm, Deps{
		Searcher: fakeSearcher{failGoals: map[string]bool{"alpha": true, "beta": true}},
		Store:    newMemStore(),
	})

	events := collect(orch.Run(context.Background(), ResearchRequest{Query: "q"}))
	last := events[len(events)-1]
	if last.Stage != StageDone {
		t.Fatalf("run with only placeholders should still produce a report, got %v (%s)", last.Stage, last.Error)
	}
	for _, model := range llm.calls {
		if model == "write-model" {
			return
		}
	}
	t.Fatal("writer was never invoked")
}

func TestRunPlannerFailureIsFatal(t *testing.T) {
	llm := &fakeLLM{
		responses: map[string]string{"search-model": searchResp, "write-model": writeResp},
		errors:    map[string]error{"plan-model": fmt.Errorf("model unavailable")},
	}
	orch := newTestOrchestrator(testConfig(), llm, Deps{Searcher: fakeSearcher{}, Store: newMemStore()})

	events := collect(orch.Run(context.Background(), ResearchRequest{Query: "q"}))
	last := events[len(events)-1]
	if !last.Terminal || last.Stage != StageErrored {
		t.Fatalf("expected errored terminal event, got %+v", last)
	}
	if last.Report != nil {
		t.Fatal("errored event must not carry a report")
	}
	if !strings.Contains(last.Error, "model unavailable") {
		t.Fatalf("error should surface the cause, got %q", last.Error)
	}
	for _, model := range llm.calls {
		if model == "search-model" || model == "write-model" {
			t.Fatalf("no downstream stage should run after a planning failure, saw %s", model)
		}
	}
}

func TestRunUnparseablePlanIsFatal(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{"plan-model": "I could not produce a plan, sorry."}}
	orch := newTestOrchestrator(testConfig(), llm, Deps{Searcher: fakeSearcher{}, Store: newMemStore()})

	events := collect(orch.Run(context.Background(), ResearchRequest{Query: "q"}))
	last := events[len(events)-1]
	if last.Stage != StageErrored {
		t.Fatalf("expected errored run for unparseable plan, got %v", last.Stage)
	}
}

func TestRunCancellationSuppressesSideEffects(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"plan-model":   planJSON("alpha"),
		"search-model": searchResp,
		"write-model":  writeResp,
	}}
	mailer := &recordingMailer{}
	notifier := &recordingNotifier{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slow := slowSearcher{release: make(chan struct{})}
	orch := newTestOrchestrator(testConfig(), llm, Deps{
		Searcher: slow,
		Mailer:   mailer,
		Notifier: notifier,
		Store:    newMemStore(),
	})

	events := orch.Run(ctx, ResearchRequest{Query: "q", RecipientEmail: "a@b.c"})
	// let the run reach the searching stage, then cancel mid-flight
	for ev := range events {
		if ev.Stage == StageSearching {
			cancel()
			close(slow.release)
			break
		}
	}
	for range events {
	}

	mailer.mu.Lock()
	sent := len(mailer.sent)
	mailer.mu.Unlock()
	if sent != 0 {
		t.Fatal("cancelled run must not send email")
	}
	notifier.mu.Lock()
	notified := notifier.count
	notifier.mu.Unlock()
	if notified != 0 {
		t.Fatal("cancelled run must not fire the webhook")
	}
}

// slowSearcher blocks until released, then reports cancellation.
type slowSearcher struct {
	release chan struct{}
}

func (s slowSearcher) Discover(ctx context.Context, q string, k int) ([]WebResult, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil, ctx.Err()
}

func TestRunSearchTimeoutKeepsSlot(t *testing.T) {
	cfg := testConfig()
	cfg.Agents.SearchTimeout = 50 * time.Millisecond
	llm := &fakeLLM{responses: map[string]string{
		"plan-model":   planJSON("alpha", "beta"),
		"search-model": searchResp,
		"write-model":  writeResp,
	}}
	st := newMemStore()
	orch := newTestOrchestrator(cfg, llm, Deps{
		Searcher: fakeSearcher{hangGoals: map[string]bool{"beta": true}},
		Store:    st,
	})

	events := collect(orch.Run(context.Background(), ResearchRequest{ID: "run-t", Query: "q"}))
	last := events[len(events)-1]
	if last.Stage != StageDone {
		t.Fatalf("run should succeed despite a timed-out search, got %v (%s)", last.Stage, last.Error)
	}

	rec, _ := st.GetRun(context.Background(), "run-t")
	if len(rec.Results) != 2 {
		t.Fatalf("expected 2 result slots, got %d", len(rec.Results))
	}
	if !rec.Results[1].Failed || rec.Results[1].Summary != PlaceholderSummary {
		t.Fatalf("timed-out slot should hold the placeholder, got %+v", rec.Results[1])
	}
	if rec.Results[0].Failed || rec.Results[0].TaskID != 0 {
		t.Fatalf("slot 0 should have succeeded in position: %+v", rec.Results[0])
	}
	if rec.FailedTasks != 1 {
		t.Fatalf("expected 1 failed task, got %d", rec.FailedTasks)
	}
}

// cancelOnWrite cancels the run context the moment the writer's model
// is invoked.
type cancelOnWrite struct {
	*fakeLLM
	cancel context.CancelFunc
}

func (c *cancelOnWrite) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	if model == "write-model" {
		c.cancel()
		return "", 0, 0, context.Canceled
	}
	return c.fakeLLM.GenerateWithTokens(ctx, prompt, model, options)
}

func (c *cancelOnWrite) Generate(ctx context.Context, prompt, model string, options map[string]interface{}) (string, error) {
	resp, _, _, err := c.GenerateWithTokens(ctx, prompt, model, options)
	return resp, err
}

func TestRunCancelDuringWritingEndsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	llm := &cancelOnWrite{
		fakeLLM: &fakeLLM{responses: map[string]string{
			"plan-model":   planJSON("alpha"),
			"search-model": searchResp,
		}},
		cancel: cancel,
	}
	mailer := &recordingMailer{}
	st := newMemStore()
	orch := newTestOrchestrator(testConfig(), llm, Deps{
		LLM:      llm,
		Searcher: fakeSearcher{},
		Mailer:   mailer,
		Store:    st,
	})

	events := collect(orch.Run(ctx, ResearchRequest{ID: "run-w", Query: "q", RecipientEmail: "a@b.c"}))
	last := events[len(events)-1]
	if !last.Terminal || last.Stage != StageErrored {
		t.Fatalf("expected terminal errored event, got %+v", last)
	}
	rec, _ := st.GetRun(context.Background(), "run-w")
	if rec.Status != "cancelled" {
		t.Fatalf("cancellation mid-write must classify as cancelled, got %q (%s)", rec.Status, rec.Error)
	}
	mailer.mu.Lock()
	sent := len(mailer.sent)
	mailer.mu.Unlock()
	if sent != 0 {
		t.Fatal("cancelled run must not send email")
	}
}

func TestRunBlockedQueryFailsBeforePlanning(t *testing.T) {
	cfg := testConfig()
	cfg.Agents.GuardrailsEnabled = true
	llm := &fakeLLM{responses: map[string]string{
		"guard-model":  `{"ok":false,"flags":["pii"],"brief":"asks for private personal data"}`,
		"plan-model":   planJSON("alpha"),
		"search-model": searchResp,
		"write-model":  writeResp,
	}}
	st := newMemStore()
	orch := newTestOrchestrator(cfg, llm, Deps{Searcher: fakeSearcher{}, Store: st})

	events := collect(orch.Run(context.Background(), ResearchRequest{ID: "run-g", Query: "find someone's address"}))
	last := events[len(events)-1]
	if !last.Terminal || last.Stage != StageErrored {
		t.Fatalf("blocked query should end errored, got %+v", last)
	}
	if !strings.Contains(last.Error, "pii") {
		t.Fatalf("error should carry the tripped flag, got %q", last.Error)
	}
	for _, model := range llm.calls {
		if model != "guard-model" {
			t.Fatalf("no other model may run after a blocked query, saw %s", model)
		}
	}
	rec, _ := st.GetRun(context.Background(), "run-g")
	if rec.Status != "failed" {
		t.Fatalf("blocked run should be recorded as failed, got %q", rec.Status)
	}
}

func TestRunSpeculativeReportBlocksDelivery(t *testing.T) {
	cfg := testConfig()
	cfg.Agents.GuardrailsEnabled = true
	// "speculative" passes the query gate but trips the report gate.
	llm := &fakeLLM{responses: map[string]string{
		"guard-model":  `{"ok":true,"flags":["speculative"],"brief":"claims without sources"}`,
		"plan-model":   planJSON("alpha"),
		"search-model": searchResp,
		"write-model":  writeResp,
	}}
	mailer := &recordingMailer{}
	orch := newTestOrchestrator(cfg, llm, Deps{Searcher: fakeSearcher{}, Mailer: mailer, Store: newMemStore()})

	events := collect(orch.Run(context.Background(), ResearchRequest{Query: "q", RecipientEmail: "a@b.c"}))
	last := events[len(events)-1]
	if last.Stage != StageErrored || !strings.Contains(last.Error, "speculative") {
		t.Fatalf("speculative report should fail the run, got %+v", last)
	}
	mailer.mu.Lock()
	sent := len(mailer.sent)
	mailer.mu.Unlock()
	if sent != 0 {
		t.Fatal("blocked report must not be emailed")
	}
}

func TestRunEmailFailureDoesNotFailRun(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"plan-model":   planJSON("alpha"),
		"search-model": searchResp,
		"write-model":  writeResp,
	}}
	mailer := &recordingMailer{err: fmt.Errorf("smtp rejected")}
	notifier := &recordingNotifier{}
	orch := newTestOrchestrator(testConfig(), llm, Deps{
		Searcher: fakeSearcher{},
		Mailer:   mailer,
		Notifier: notifier,
		Store:    newMemStore(),
	})

	events := collect(orch.Run(context.Background(), ResearchRequest{Query: "q", RecipientEmail: "a@b.c"}))
	last := events[len(events)-1]
	if last.Stage != StageDone {
		t.Fatalf("delivery failure must not fail the run, got %v (%s)", last.Stage, last.Error)
	}
	notifier.mu.Lock()
	notified := notifier.count
	notifier.mu.Unlock()
	if notified != 1 {
		t.Fatalf("webhook should still fire after an email failure, fired %d times", notified)
	}
}

func TestRunClarifierQuestionsFlowIntoPlan(t *testing.T) {
	cfg := testConfig()
	cfg.Agents.ClarifyQuestions = 3
	llm := &fakeLLM{responses: map[string]string{
		"clarify-model": `{"questions":["Scope?","Audience?","Timeframe?"]}`,
		"plan-model":    planJSON("alpha"),
		"search-model":  searchResp,
		"write-model":   writeResp,
	}}
	st := newMemStore()
	orch := newTestOrchestrator(cfg, llm, Deps{Searcher: fakeSearcher{}, Store: st})

	events := collect(orch.Run(context.Background(), ResearchRequest{ID: "run-c", Query: "q"}))
	got := stagesOf(events)
	if got[0] != StageClarifying {
		t.Fatalf("run should start in clarifying, got %v", got)
	}
	questions := 0
	for _, ev := range events {
		if ev.Stage == StageClarifying && strings.HasPrefix(ev.Message, "Question ") {
			questions++
		}
	}
	if questions != 3 {
		t.Fatalf("expected 3 question events, got %d", questions)
	}
	rec, _ := st.GetRun(context.Background(), "run-c")
	if len(rec.Clarified) != 3 {
		t.Fatalf("clarifications should be recorded, got %d", len(rec.Clarified))
	}
}

func TestRunSuppliedAnswersSkipClarifier(t *testing.T) {
	cfg := testConfig()
	cfg.Agents.ClarifyQuestions = 3
	llm := &fakeLLM{responses: map[string]string{
		"plan-model":   planJSON("alpha"),
		"search-model": searchResp,
		"write-model":  writeResp,
	}}
	orch := newTestOrchestrator(cfg, llm, Deps{Searcher: fakeSearcher{}, Store: newMemStore()})

	req := ResearchRequest{
		Query:          "q",
		Clarifications: []Clarification{{Question: "Scope?", Answer: "global"}},
	}
	collect(orch.Run(context.Background(), req))
	for _, model := range llm.calls {
		if model == "clarify-model" {
			t.Fatal("clarifier must not run when answers are supplied")
		}
	}
}
