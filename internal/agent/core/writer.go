package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/scouthq/scout/config"
	"github.com/scouthq/scout/internal/agent/telemetry"
)

// Writer synthesizes the collected search summaries into the final
// report. A writer failure is fatal to the run.
type Writer struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

func NewWriter(cfg *config.Config, llmProvider LLMProvider, tele *telemetry.Telemetry) *Writer {
	return &Writer{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tele,
		logger:      log.New(log.Writer(), "[WRITER] ", log.LstdFlags),
	}
}

// Write produces the report from the ordered results. Placeholder
// entries for failed searches are passed through untouched so the
// model sees which slots came up empty.
func (w *Writer) Write(ctx context.Context, query string, clarifications []Clarification, results []SearchResult) (Report, error) {
	startTime := time.Now()

	prompt := w.createWritingPrompt(query, clarifications, results)
	model := w.config.LLM.Routing.Model("synthesis")

	response, inTok, outTok, err := w.llmProvider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.5,
		"max_tokens":  4000,
	})
	w.telemetry.RecordModelCall(telemetry.ModelCallEvent{
		Stage:    "write",
		Model:    model,
		Duration: time.Since(startTime),
		Success:  err == nil,
		Tokens:   inTok + outTok,
		Cost:     w.llmProvider.CalculateCost(inTok, outTok, model),
	})
	if err != nil {
		return Report{}, fmt.Errorf("failed to generate report: %w", err)
	}

	report, err := parseWritingResponse(response)
	if err != nil {
		return Report{}, fmt.Errorf("failed to parse writer response: %w", err)
	}

	w.logger.Printf("report written in %v (%d chars)", time.Since(startTime), len(report.Markdown))
	return report, nil
}

func (w *Writer) createWritingPrompt(query string, clarifications []Clarification, results []SearchResult) string {
	var b strings.Builder
	b.WriteString(`You are a senior researcher writing a cohesive report for a research query. Start from the research findings below, build an outline, then write the full report in markdown. Aim for 5-10 pages of detailed content. Slots marked as failed produced no findings; acknowledge gaps rather than inventing facts.

`)
	fmt.Fprintf(&b, "QUERY: %s\n", query)
	if len(clarifications) > 0 {
		b.WriteString("\nCLARIFICATIONS:\n")
		for i, c := range clarifications {
			fmt.Fprintf(&b, "Q%d: %s\n", i+1, c.Question)
			if c.Answer != "" {
				fmt.Fprintf(&b, "A%d: %s\n", i+1, c.Answer)
			}
		}
	}
	b.WriteString("\nRESEARCH FINDINGS:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "--- finding %d ---\n%s\n", r.TaskID+1, r.Summary)
		if len(r.Sources) > 0 {
			fmt.Fprintf(&b, "sources: %s\n", strings.Join(r.Sources, ", "))
		}
	}
	b.WriteString(`
OUTPUT FORMAT (JSON):
{
  "short_summary": "2-3 sentence summary of the findings",
  "markdown_report": "the full markdown report",
  "follow_up_questions": ["suggested topics to research further"]
}

Respond with the JSON object only.`)
	return b.String()
}

func parseWritingResponse(response string) (Report, error) {
	jsonStr, err := extractJSON(response)
	if err != nil {
		return Report{}, err
	}
	var raw struct {
		ShortSummary      string   `json:"short_summary"`
		MarkdownReport    string   `json:"markdown_report"`
		FollowUpQuestions []string `json:"follow_up_questions"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return Report{}, err
	}
	if strings.TrimSpace(raw.MarkdownReport) == "" {
		return Report{}, fmt.Errorf("writer returned an empty report")
	}
	return Report{
		ShortSummary:      strings.TrimSpace(raw.ShortSummary),
		Markdown:          raw.MarkdownReport,
		FollowUpQuestions: raw.FollowUpQuestions,
	}, nil
}
