package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scouthq/scout/config"
	"github.com/scouthq/scout/internal/agent/telemetry"
)

// ReportArchiver indexes finished reports for full-text search over
// the run history. Indexing failures are logged, never fatal.
type ReportArchiver interface {
	Index(rec RunRecord) error
}

// Deps bundles the orchestrator's collaborators. Mailer, Notifier,
// Store, Archive and Reader may be nil; RenderHTML defaults to
// identity when unset.
type Deps struct {
	LLM        LLMProvider
	Searcher   Searcher
	Reader     PageReader
	Mailer     Mailer
	Notifier   Notifier
	Store      RunStore
	Archive    ReportArchiver
	RenderHTML func(markdown string) string
}

// Orchestrator drives one research run through its stages:
// clarifying -> planning -> searching -> writing -> finalizing -> done.
type Orchestrator struct {
	config    *config.Config
	guard     *Guardrail
	clarifier *Clarifier
	planner   *Planner
	search    *SearchAgent
	writer    *Writer
	deps      Deps
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func NewOrchestrator(cfg *config.Config, deps Deps, tele *telemetry.Telemetry) *Orchestrator {
	if deps.RenderHTML == nil {
		deps.RenderHTML = func(md string) string { return md }
	}
	return &Orchestrator{
		config:    cfg,
		guard:     NewGuardrail(cfg, deps.LLM, tele),
		clarifier: NewClarifier(cfg, deps.LLM, tele),
		planner:   NewPlanner(cfg, deps.LLM, tele),
		search:    NewSearchAgent(cfg, deps.LLM, deps.Searcher, deps.Reader, tele),
		writer:    NewWriter(cfg, deps.LLM, tele),
		deps:      deps,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[ORCHESTRATOR] ", log.LstdFlags),
	}
}

// Run starts the pipeline and returns the event stream. The channel is
// closed after the terminal event; cancelling ctx aborts the run and
// suppresses all remaining side effects.
func (o *Orchestrator) Run(ctx context.Context, req ResearchRequest) <-chan StatusEvent {
	events := make(chan StatusEvent, 16)
	go o.run(ctx, req, events)
	return events
}

func (o *Orchestrator) run(ctx context.Context, req ResearchRequest, events chan<- StatusEvent) {
	defer close(events)

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}
	startTime := time.Now()
	o.telemetry.RecordRunStart()
	o.logger.Printf("run %s started: %q", req.ID, req.Query)

	rec := RunRecord{
		ID:        req.ID,
		Query:     req.Query,
		Status:    "running",
		StartedAt: startTime,
	}
	o.saveRun(rec)

	// Input guardrail: the query is vetted before any other model spend.
	if o.config.Agents.GuardrailsEnabled {
		gctx, cancel := context.WithTimeout(ctx, o.config.Agents.StageTimeout)
		err := o.guard.CheckQuery(gctx, req.Query)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				o.finishCancelled(rec, startTime, events, ctx)
				return
			}
			o.finishFailed(ctx, rec, startTime, events, err)
			return
		}
	}

	// Clarifying. Skipped when the caller already supplied answers or
	// opted out; generated questions ride along into the planner prompt
	// unanswered on non-interactive runs.
	clarifications := req.Clarifications
	if len(clarifications) == 0 && !req.SkipClarify && o.config.Agents.ClarifyQuestions > 0 {
		rec.Stage = StageClarifying
		if !o.emit(ctx, events, StatusEvent{Stage: StageClarifying, Message: "Generating clarifying questions...", Timestamp: time.Now()}) {
			o.finishCancelled(rec, startTime, events, ctx)
			return
		}
		cctx, cancel := context.WithTimeout(ctx, o.config.Agents.StageTimeout)
		qs, err := o.clarifier.Clarify(cctx, req.Query)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				o.finishCancelled(rec, startTime, events, ctx)
				return
			}
			o.finishFailed(ctx, rec, startTime, events, ModelError{Stage: StageClarifying, Err: err})
			return
		}
		clarifications = qs
		for i, c := range clarifications {
			if !o.emit(ctx, events, StatusEvent{Stage: StageClarifying, Message: fmt.Sprintf("Question %d: %s", i+1, c.Question), Timestamp: time.Now()}) {
				o.finishCancelled(rec, startTime, events, ctx)
				return
			}
		}
	}
	rec.Clarified = clarifications

	// Planning.
	rec.Stage = StagePlanning
	if !o.emit(ctx, events, StatusEvent{Stage: StagePlanning, Message: "Planning searches...", Timestamp: time.Now()}) {
		o.finishCancelled(rec, startTime, events, ctx)
		return
	}
	pctx, cancel := context.WithTimeout(ctx, o.config.Agents.StageTimeout)
	tasks, err := o.planner.Plan(pctx, req.Query, clarifications)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			o.finishCancelled(rec, startTime, events, ctx)
			return
		}
		o.finishFailed(ctx, rec, startTime, events, ModelError{Stage: StagePlanning, Err: err})
		return
	}
	rec.Tasks = tasks

	// Searching: bounded fan-out, results land in their plan slot.
	rec.Stage = StageSearching
	if !o.emit(ctx, events, StatusEvent{Stage: StageSearching, Message: fmt.Sprintf("Running %d searches...", len(tasks)), Timestamp: time.Now()}) {
		o.finishCancelled(rec, startTime, events, ctx)
		return
	}
	results := o.runSearches(ctx, tasks, events)
	rec.Results = results
	for _, r := range results {
		if r.Failed {
			rec.FailedTasks++
		}
	}
	if ctx.Err() != nil {
		o.finishCancelled(rec, startTime, events, ctx)
		return
	}

	// Writing.
	rec.Stage = StageWriting
	if !o.emit(ctx, events, StatusEvent{Stage: StageWriting, Message: "Writing report...", Timestamp: time.Now()}) {
		o.finishCancelled(rec, startTime, events, ctx)
		return
	}
	wctx, cancel := context.WithTimeout(ctx, o.config.Agents.StageTimeout)
	report, err := o.writer.Write(wctx, req.Query, clarifications, results)
	cancel()
	if err != nil {
		// A cancellation landing mid-write is a cancelled run, not a
		// model failure.
		if ctx.Err() != nil {
			o.finishCancelled(rec, startTime, events, ctx)
			return
		}
		o.finishFailed(ctx, rec, startTime, events, ModelError{Stage: StageWriting, Err: err})
		return
	}
	rec.Report = &report

	// Output guardrail: the draft report is vetted before delivery.
	if o.config.Agents.GuardrailsEnabled {
		gctx, cancel := context.WithTimeout(ctx, o.config.Agents.StageTimeout)
		err = o.guard.CheckReport(gctx, report.Markdown)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				o.finishCancelled(rec, startTime, events, ctx)
				return
			}
			o.finishFailed(ctx, rec, startTime, events, err)
			return
		}
	}

	// Finalizing: delivery side effects. Cancellation checked first so
	// an aborted run never emails or pings anyone.
	if ctx.Err() != nil {
		o.finishCancelled(rec, startTime, events, ctx)
		return
	}
	rec.Stage = StageFinalizing
	if !o.emit(ctx, events, StatusEvent{Stage: StageFinalizing, Message: "Delivering report...", Timestamp: time.Now()}) {
		o.finishCancelled(rec, startTime, events, ctx)
		return
	}
	o.deliver(ctx, req, report)

	now := time.Now()
	rec.Status = "succeeded"
	rec.Stage = StageDone
	rec.FinishedAt = &now
	o.saveRun(rec)
	o.archive(rec)
	o.telemetry.RecordRunEvent(telemetry.RunEvent{
		RunID:     req.ID,
		Query:     req.Query,
		Duration:  time.Since(startTime),
		Succeeded: true,
		Searches:  len(tasks),
		Failures:  rec.FailedTasks,
	})
	o.emit(ctx, events, StatusEvent{
		Stage:     StageDone,
		Message:   report.ShortSummary,
		Timestamp: now,
		Terminal:  true,
		Report:    &report,
	})
	o.logger.Printf("run %s succeeded in %v (%d/%d searches ok)", req.ID, time.Since(startTime), len(tasks)-rec.FailedTasks, len(tasks))
}

// runSearches fans the tasks out over a bounded worker set and fans the
// results back into a slice indexed by task ID. A failed task keeps its
// slot with a placeholder so the writer sees the full plan shape.
func (o *Orchestrator) runSearches(ctx context.Context, tasks []SearchTask, events chan<- StatusEvent) []SearchResult {
	results := make([]SearchResult, len(tasks))
	sem := make(chan struct{}, o.config.Agents.MaxConcurrentSearches)

	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0

	for _, task := range tasks {
		wg.Add(1)
		go func(task SearchTask) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				results[task.ID] = placeholderResult(task.ID, ctx.Err())
				return
			}
			tctx, cancel := context.WithTimeout(ctx, o.config.Agents.SearchTimeout)
			res, err := o.search.Execute(tctx, task)
			cancel()
			if err != nil {
				o.logger.Printf("%v", err)
				results[task.ID] = placeholderResult(task.ID, err)
			} else {
				results[task.ID] = res
			}

			mu.Lock()
			completed++
			n := completed
			mu.Unlock()
			o.emit(ctx, events, StatusEvent{
				Stage:     StageSearching,
				Message:   fmt.Sprintf("Searching... %d/%d completed", n, len(tasks)),
				Timestamp: time.Now(),
			})
		}(task)
	}
	wg.Wait()
	return results
}

func placeholderResult(taskID int, err error) SearchResult {
	return SearchResult{
		TaskID:  taskID,
		Summary: PlaceholderSummary,
		Failed:  true,
		Error:   err.Error(),
	}
}

// deliver sends the report by email and fires the completion webhook.
// Both are best effort; a DeliveryError never fails the run.
func (o *Orchestrator) deliver(ctx context.Context, req ResearchRequest, report Report) {
	if req.RecipientEmail != "" && o.deps.Mailer != nil {
		html := o.deps.RenderHTML(report.Markdown)
		subject := report.ShortSummary
		if subject == "" {
			subject = "Research report: " + req.Query
		}
		if err := o.deps.Mailer.Send(ctx, req.RecipientEmail, subject, html); err != nil {
			o.logger.Printf("%v", DeliveryError{Channel: "email", Err: err})
		}
	}
	if o.deps.Notifier != nil {
		if err := o.deps.Notifier.Notify(ctx, report.ShortSummary); err != nil {
			o.logger.Printf("%v", DeliveryError{Channel: "webhook", Err: err})
		}
	}
}

func (o *Orchestrator) finishFailed(ctx context.Context, rec RunRecord, startTime time.Time, events chan<- StatusEvent, cause error) {
	now := time.Now()
	rec.Status = "failed"
	rec.Stage = StageErrored
	rec.Error = cause.Error()
	rec.FinishedAt = &now
	o.saveRun(rec)
	o.telemetry.RecordRunEvent(telemetry.RunEvent{
		RunID:    rec.ID,
		Query:    rec.Query,
		Duration: time.Since(startTime),
		Searches: len(rec.Tasks),
		Failures: rec.FailedTasks,
	})
	o.emit(ctx, events, StatusEvent{
		Stage:     StageErrored,
		Message:   "Run failed",
		Timestamp: now,
		Terminal:  true,
		Error:     cause.Error(),
	})
	o.logger.Printf("run %s failed: %v", rec.ID, cause)
}

func (o *Orchestrator) finishCancelled(rec RunRecord, startTime time.Time, events chan<- StatusEvent, ctx context.Context) {
	now := time.Now()
	rec.Status = "cancelled"
	rec.Stage = StageErrored
	rec.Error = context.Canceled.Error()
	if ctx.Err() != nil {
		rec.Error = ctx.Err().Error()
	}
	rec.FinishedAt = &now
	o.saveRun(rec)
	o.telemetry.RecordRunEvent(telemetry.RunEvent{
		RunID:     rec.ID,
		Query:     rec.Query,
		Duration:  time.Since(startTime),
		Cancelled: true,
		Searches:  len(rec.Tasks),
		Failures:  rec.FailedTasks,
	})
	// The consumer may already be gone; try once without blocking.
	select {
	case events <- StatusEvent{Stage: StageErrored, Message: "Run cancelled", Timestamp: now, Terminal: true, Error: rec.Error}:
	default:
	}
	o.logger.Printf("run %s cancelled", rec.ID)
}

// emit delivers one event, giving up when the run context dies. A
// false return means the run is being cancelled.
func (o *Orchestrator) emit(ctx context.Context, events chan<- StatusEvent, ev StatusEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) saveRun(rec RunRecord) {
	if o.deps.Store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.deps.Store.SaveRun(sctx, rec); err != nil {
		o.logger.Printf("saving run %s: %v", rec.ID, err)
	}
}

func (o *Orchestrator) archive(rec RunRecord) {
	if o.deps.Archive == nil || rec.Report == nil {
		return
	}
	if err := o.deps.Archive.Index(rec); err != nil {
		o.logger.Printf("archiving run %s: %v", rec.ID, err)
	}
}
