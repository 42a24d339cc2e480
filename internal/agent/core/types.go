package core

import (
	"context"
	"time"
)

// ResearchRequest represents a user's research query.
// Immutable once accepted into the pipeline.
type ResearchRequest struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
	// Clarifications carries the user's answers when the UI ran the
	// clarify step up front. When empty and SkipClarify is false the
	// orchestrator generates questions itself.
	Clarifications []Clarification `json:"clarifications,omitempty"`
	SkipClarify    bool            `json:"skip_clarify,omitempty"`
	// RecipientEmail enables report delivery when set.
	RecipientEmail string `json:"recipient_email,omitempty"`
}

// Clarification is one clarifying question, optionally answered.
type Clarification struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

// SearchTask is one planned web search. ID is the ordinal position in
// the plan; tasks are read-only once the planner returns them.
type SearchTask struct {
	ID        int    `json:"id"`
	Goal      string `json:"goal"`
	Rationale string `json:"rationale"`
}

// SearchResult is the condensed outcome of one SearchTask, matched by
// task ID. Failed tasks still occupy their slot with a placeholder
// summary so the sequence stays aligned with the plan.
type SearchResult struct {
	TaskID  int      `json:"task_id"`
	Summary string   `json:"summary"`
	Sources []string `json:"sources,omitempty"`
	Failed  bool     `json:"failed,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// PlaceholderSummary fills the slot of a failed search task.
const PlaceholderSummary = "(no result: search failed)"

// Report is the synthesized output of a run. Immutable once produced.
type Report struct {
	ShortSummary      string   `json:"short_summary"`
	Markdown          string   `json:"markdown_report"`
	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`
}

// Stage identifies one state of the orchestrator's pipeline.
type Stage string

const (
	StageClarifying Stage = "clarifying"
	StagePlanning   Stage = "planning"
	StageSearching  Stage = "searching"
	StageWriting    Stage = "writing"
	StageFinalizing Stage = "finalizing"
	StageDone       Stage = "done"
	StageErrored    Stage = "errored"
)

// StatusEvent is a transient progress update emitted at each stage
// transition. The terminal event carries either the report or the
// failure reason, never both.
type StatusEvent struct {
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Terminal  bool      `json:"terminal,omitempty"`
	Report    *Report   `json:"report,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// RunRecord is the durable summary of a finished (or failed) run.
type RunRecord struct {
	ID          string          `json:"id"`
	Query       string          `json:"query"`
	Status      string          `json:"status"` // running, succeeded, failed, cancelled
	Stage       Stage           `json:"stage"`
	Tasks       []SearchTask    `json:"tasks,omitempty"`
	Results     []SearchResult  `json:"results,omitempty"`
	Report      *Report         `json:"report,omitempty"`
	Error       string          `json:"error,omitempty"`
	FailedTasks int             `json:"failed_tasks"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Clarified   []Clarification `json:"clarifications,omitempty"`
}

// LLMProvider is the contract for hosted completion APIs.
type LLMProvider interface {
	// Generate returns the completion text for a prompt.
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens also returns prompt/completion token counts.
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// CalculateCost converts token usage into an estimated dollar cost.
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// Searcher is the contract for web search backends.
type Searcher interface {
	Discover(ctx context.Context, q string, k int) ([]WebResult, error)
}

// WebResult is one raw search hit before condensation.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Mailer delivers a rendered report. Failure never escalates above a
// DeliveryError.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Notifier fires a side-channel completion alert. A no-op
// implementation is a valid collaborator.
type Notifier interface {
	Notify(ctx context.Context, summary string) error
}

// RunStore persists run records for the API layer. Persistence
// failures are logged, never fatal to a run.
type RunStore interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListRuns(ctx context.Context) ([]RunRecord, error)
}
