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

// Clarifier asks a small fixed number of clarifying questions for an
// ambiguous query. It runs once per pipeline, before planning.
type Clarifier struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

func NewClarifier(cfg *config.Config, llmProvider LLMProvider, tele *telemetry.Telemetry) *Clarifier {
	return &Clarifier{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tele,
		logger:      log.New(log.Writer(), "[CLARIFIER] ", log.LstdFlags),
	}
}

// Clarify generates up to agents.clarify_questions questions for the
// query. A model or parse failure is fatal to the run (ModelError at
// the caller). Returns nil when clarification is disabled.
func (c *Clarifier) Clarify(ctx context.Context, query string) ([]Clarification, error) {
	n := c.config.Agents.ClarifyQuestions
	if n <= 0 {
		return nil, nil
	}
	startTime := time.Now()

	prompt := c.createClarifyPrompt(query, n)
	model := c.config.LLM.Routing.Model("clarify")

	response, inTok, outTok, err := c.llmProvider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.3,
		"max_tokens":  600,
	})
	c.telemetry.RecordModelCall(telemetry.ModelCallEvent{
		Stage:    "clarify",
		Model:    model,
		Duration: time.Since(startTime),
		Success:  err == nil,
		Tokens:   inTok + outTok,
		Cost:     c.llmProvider.CalculateCost(inTok, outTok, model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate clarifying questions: %w", err)
	}

	questions, err := parseClarifyResponse(response, n)
	if err != nil {
		return nil, fmt.Errorf("failed to parse clarifier response: %w", err)
	}

	c.logger.Printf("generated %d clarifying questions in %v", len(questions), time.Since(startTime))
	return questions, nil
}

func (c *Clarifier) createClarifyPrompt(query string, n int) string {
	return fmt.Sprintf(`You are a research clarifier. Given a user query, ask exactly %d concrete clarifying questions that would materially improve the quality of research and the final report. Focus on scope, constraints, target audience, timeframe, and success criteria. Avoid meta-questions.

QUERY: %s

OUTPUT FORMAT (JSON):
{"questions": ["...", "..."]}

Respond with the JSON object only.`, n, query)
}

func parseClarifyResponse(response string, max int) ([]Clarification, error) {
	jsonStr, err := extractJSON(response)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, err
	}
	if len(raw.Questions) == 0 {
		return nil, fmt.Errorf("clarifier returned no questions")
	}
	var out []Clarification
	for _, q := range raw.Questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		out = append(out, Clarification{Question: q})
		if len(out) >= max {
			break
		}
	}
	return out, nil
}
