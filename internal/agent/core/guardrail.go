package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/scouthq/scout/config"
	"github.com/scouthq/scout/internal/agent/telemetry"
)

// Flags that block a run outright. Reports additionally trip on
// unsourced speculation.
var (
	queryHardFlags  = []string{"unsafe", "illegal", "pii", "adult", "private_data"}
	reportHardFlags = append([]string{"speculative"}, queryHardFlags...)
)

// Guardrail vets the user query before planning and the draft report
// before delivery. A tripped guardrail is fatal to the run.
type Guardrail struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

func NewGuardrail(cfg *config.Config, llmProvider LLMProvider, tele *telemetry.Telemetry) *Guardrail {
	return &Guardrail{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tele,
		logger:      log.New(log.Writer(), "[GUARDRAIL] ", log.LstdFlags),
	}
}

type guardrailVerdict struct {
	OK    bool     `json:"ok"`
	Flags []string `json:"flags"`
	Brief string   `json:"brief"`
}

// CheckQuery gates the incoming query. A blocked query returns a
// GuardrailError; advisory flags (vague etc.) only log.
func (g *Guardrail) CheckQuery(ctx context.Context, query string) error {
	verdict, err := g.run(ctx, g.createQueryPrompt(query))
	if err != nil {
		return fmt.Errorf("query guardrail: %w", err)
	}
	if flags := tripped(verdict.Flags, queryHardFlags); len(flags) > 0 {
		return GuardrailError{Direction: "query", Flags: flags, Reason: brief(verdict)}
	}
	if len(verdict.Flags) > 0 {
		g.logger.Printf("query flagged %v: %s", verdict.Flags, brief(verdict))
	}
	return nil
}

// CheckReport gates the draft report before delivery.
func (g *Guardrail) CheckReport(ctx context.Context, markdown string) error {
	verdict, err := g.run(ctx, g.createReportPrompt(markdown))
	if err != nil {
		return fmt.Errorf("report guardrail: %w", err)
	}
	if flags := tripped(verdict.Flags, reportHardFlags); len(flags) > 0 {
		return GuardrailError{Direction: "report", Flags: flags, Reason: brief(verdict)}
	}
	if len(verdict.Flags) > 0 {
		g.logger.Printf("report flagged %v: %s", verdict.Flags, brief(verdict))
	}
	return nil
}

func (g *Guardrail) run(ctx context.Context, prompt string) (guardrailVerdict, error) {
	startTime := time.Now()
	model := g.config.LLM.Routing.Model("guardrail")

	response, inTok, outTok, err := g.llmProvider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.0,
		"max_tokens":  300,
	})
	g.telemetry.RecordModelCall(telemetry.ModelCallEvent{
		Stage:    "guardrail",
		Model:    model,
		Duration: time.Since(startTime),
		Success:  err == nil,
		Tokens:   inTok + outTok,
		Cost:     g.llmProvider.CalculateCost(inTok, outTok, model),
	})
	if err != nil {
		return guardrailVerdict{}, err
	}
	return parseGuardrailResponse(response)
}

func (g *Guardrail) createQueryPrompt(query string) string {
	return fmt.Sprintf(`You are an input gate for a research system. Decide only whether the user query is safe and actionable.

Rules:
- Block: illegal/unsafe content, PII requests, adult-only content, or requests for private/live/inaccessible data. Add the matching flag from [unsafe, illegal, pii, adult, private_data] and set ok=false.
- If vague/underspecified, set ok=true and add "vague" to flags; use "brief" to suggest 1-2 clarifications.
- If safe and specific enough to research, ok=true with no flags.

QUERY: %s

OUTPUT FORMAT (JSON):
{"ok": true, "flags": [], "brief": ""}

Respond with the JSON object only.`, query)
}

func (g *Guardrail) createReportPrompt(markdown string) string {
	return fmt.Sprintf(`You are an output gate for research reports. Decide only whether the draft report is safe, factual-sounding, and properly structured.

Rules:
- Require an executive summary, key findings, limitations and next steps (or equivalents). If missing, add "structure_missing" to flags.
- If content seems speculative without sources, add "speculative" and set ok=false.
- If privacy/safety concerns appear, add "unsafe" and set ok=false.
- Otherwise ok=true.

REPORT:
%s

OUTPUT FORMAT (JSON):
{"ok": true, "flags": [], "brief": ""}

Respond with the JSON object only.`, markdown)
}

func parseGuardrailResponse(response string) (guardrailVerdict, error) {
	jsonStr, err := extractJSON(response)
	if err != nil {
		return guardrailVerdict{}, err
	}
	var v guardrailVerdict
	if err := json.Unmarshal([]byte(jsonStr), &v); err != nil {
		return guardrailVerdict{}, err
	}
	return v, nil
}

func tripped(flags, hard []string) []string {
	var out []string
	for _, f := range flags {
		for _, h := range hard {
			if f == h {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func brief(v guardrailVerdict) string {
	if v.Brief == "" {
		return "no reason given"
	}
	return v.Brief
}
