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

// Planner decomposes a clarified query into a bounded, ordered list of
// web-search subtasks.
type Planner struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

func NewPlanner(cfg *config.Config, llmProvider LLMProvider, tele *telemetry.Telemetry) *Planner {
	return &Planner{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tele,
		logger:      log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// Plan produces at most agents.max_search_tasks SearchTasks for the
// query. Unparseable model output fails the run; no partial plan is
// ever guessed.
func (p *Planner) Plan(ctx context.Context, query string, clarifications []Clarification) ([]SearchTask, error) {
	startTime := time.Now()

	prompt := p.createPlanningPrompt(query, clarifications)
	model := p.config.LLM.Routing.Model("planning")

	response, inTok, outTok, err := p.llmProvider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.3, // lower temperature for consistent planning
		"max_tokens":  1500,
	})
	p.telemetry.RecordModelCall(telemetry.ModelCallEvent{
		Stage:    "plan",
		Model:    model,
		Duration: time.Since(startTime),
		Success:  err == nil,
		Tokens:   inTok + outTok,
		Cost:     p.llmProvider.CalculateCost(inTok, outTok, model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate plan: %w", err)
	}

	tasks, err := p.parsePlanningResponse(response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse planning response: %w", err)
	}

	p.logger.Printf("planning completed in %v with %d tasks", time.Since(startTime), len(tasks))
	return tasks, nil
}

func (p *Planner) createPlanningPrompt(query string, clarifications []Clarification) string {
	clarBlock := ""
	if len(clarifications) > 0 {
		var b strings.Builder
		b.WriteString("\nCLARIFICATIONS:\n")
		for i, c := range clarifications {
			fmt.Fprintf(&b, "Q%d: %s\n", i+1, c.Question)
			if c.Answer != "" {
				fmt.Fprintf(&b, "A%d: %s\n", i+1, c.Answer)
			}
		}
		clarBlock = b.String()
	}

	return fmt.Sprintf(`You are a research planner. Given a query, produce at most %d web search items that, together, best answer the query. Each item needs the exact search term to run and a short rationale for why it helps.
%s
QUERY: %s

OUTPUT FORMAT (JSON):
{
  "searches": [
    {"goal": "exact search term", "rationale": "why this search helps"}
  ]
}

Respond with the JSON object only.`, p.config.Agents.MaxSearchTasks, clarBlock, query)
}

// parsePlanningResponse converts the model output into an ordered task
// list, clamped to the configured maximum.
func (p *Planner) parsePlanningResponse(response string) ([]SearchTask, error) {
	jsonStr, err := extractJSON(response)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Searches []struct {
			Goal      string `json:"goal"`
			Rationale string `json:"rationale"`
		} `json:"searches"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, err
	}
	if len(raw.Searches) == 0 {
		return nil, fmt.Errorf("plan contains no searches")
	}

	maxTasks := p.config.Agents.MaxSearchTasks
	var tasks []SearchTask
	for _, s := range raw.Searches {
		goal := strings.TrimSpace(s.Goal)
		if goal == "" {
			return nil, fmt.Errorf("plan contains a search with an empty goal")
		}
		tasks = append(tasks, SearchTask{
			ID:        len(tasks),
			Goal:      goal,
			Rationale: strings.TrimSpace(s.Rationale),
		})
		if len(tasks) >= maxTasks {
			break
		}
	}
	return tasks, nil
}
