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

// PageReader extracts readable text from a web page so the condenser
// sees more than search snippets. Optional; may be nil.
type PageReader interface {
	Extract(ctx context.Context, url string) (string, error)
}

// SearchAgent executes one planned search: a web search call followed
// by an LLM condensation of the hits into a short summary.
type SearchAgent struct {
	config      *config.Config
	llmProvider LLMProvider
	searcher    Searcher
	reader      PageReader
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

func NewSearchAgent(cfg *config.Config, llmProvider LLMProvider, searcher Searcher, reader PageReader, tele *telemetry.Telemetry) *SearchAgent {
	return &SearchAgent{
		config:      cfg,
		llmProvider: llmProvider,
		searcher:    searcher,
		reader:      reader,
		telemetry:   tele,
		logger:      log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
	}
}

// Execute runs one task to completion. Any failure is returned as a
// SearchError; the orchestrator turns it into a placeholder slot.
func (a *SearchAgent) Execute(ctx context.Context, task SearchTask) (SearchResult, error) {
	startTime := time.Now()

	hits, err := a.searcher.Discover(ctx, task.Goal, a.config.Search.MaxResults)
	if err != nil {
		return SearchResult{}, SearchError{TaskID: task.ID, Err: err}
	}
	if len(hits) == 0 {
		return SearchResult{}, SearchError{TaskID: task.ID, Err: fmt.Errorf("no results for %q", task.Goal)}
	}

	pageText := ""
	if a.reader != nil && a.config.Search.FetchTopResult {
		// Best effort: a fetch failure falls back to snippets only.
		if text, err := a.reader.Extract(ctx, hits[0].URL); err == nil {
			pageText = text
		} else {
			a.logger.Printf("page fetch for task %d failed: %v", task.ID, err)
		}
	}

	summary, sources, err := a.condense(ctx, task, hits, pageText)
	if err != nil {
		return SearchResult{}, SearchError{TaskID: task.ID, Err: err}
	}

	a.logger.Printf("task %d (%q) completed in %v", task.ID, task.Goal, time.Since(startTime))
	return SearchResult{TaskID: task.ID, Summary: summary, Sources: sources}, nil
}

// condense asks the research model for a <=300 word synthesis of the
// hits, with canonical source URLs.
func (a *SearchAgent) condense(ctx context.Context, task SearchTask, hits []WebResult, pageText string) (string, []string, error) {
	startTime := time.Now()
	prompt := a.createCondensePrompt(task, hits, pageText)
	model := a.config.LLM.Routing.Model("research")

	response, inTok, outTok, err := a.llmProvider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.4,
		"max_tokens":  700,
	})
	a.telemetry.RecordModelCall(telemetry.ModelCallEvent{
		Stage:    "search",
		Model:    model,
		Duration: time.Since(startTime),
		Success:  err == nil,
		Tokens:   inTok + outTok,
		Cost:     a.llmProvider.CalculateCost(inTok, outTok, model),
	})
	if err != nil {
		return "", nil, err
	}

	jsonStr, err := extractJSON(response)
	if err != nil {
		return "", nil, err
	}
	var raw struct {
		Summary string   `json:"summary"`
		Sources []string `json:"sources"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(raw.Summary) == "" {
		return "", nil, fmt.Errorf("condenser returned an empty summary")
	}
	return raw.Summary, raw.Sources, nil
}

func (a *SearchAgent) createCondensePrompt(task SearchTask, hits []WebResult, pageText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a research assistant. Given a search goal and web results, produce JSON with (1) a <=300-word synthesis in "summary", and (2) 2-5 canonical source URLs in "sources", most relevant first. Prefer primary/official docs and high-quality outlets; dedupe mirrors.

SEARCH GOAL: %s
RATIONALE: %s

RESULTS:
`, task.Goal, task.Rationale)
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, h.Title, h.URL, h.Snippet)
	}
	if pageText != "" {
		maxChars := a.config.Search.FetchMaxChars
		if maxChars > 0 && len(pageText) > maxChars {
			pageText = pageText[:maxChars]
		}
		fmt.Fprintf(&b, "\nTOP RESULT PAGE TEXT:\n%s\n", pageText)
	}
	b.WriteString("\nRespond with the JSON object only.")
	return b.String()
}
