package core

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/scouthq/scout/config"
)

// NewLLMProvider creates an LLM provider based on configuration.
// Only OpenAI-compatible chat-completion APIs are supported for now.
func NewLLMProvider(cfg config.LLMConfig) (LLMProvider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	for _, provider := range cfg.Providers {
		switch provider.Type {
		case "openai":
			return NewOpenAIProvider(provider), nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", provider.Type)
		}
	}
	return nil, fmt.Errorf("no valid LLM providers found")
}

// OpenAIProvider implements LLMProvider against the chat-completions API.
type OpenAIProvider struct {
	config config.LLMProvider
	models map[string]config.LLMModel
	http   *HTTPClient
}

func NewOpenAIProvider(cfg config.LLMProvider) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		config: cfg,
		models: cfg.Models,
		http:   NewHTTPClient(timeout, cfg.MaxRetries, 400*time.Millisecond),
	}
}

// Generate generates text for a prompt.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	resp, _, _, err := p.GenerateWithTokens(ctx, prompt, model, options)
	return resp, err
}

// GenerateWithTokens generates text and returns token usage.
func (p *OpenAIProvider) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	apiKey := p.config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return "", 0, 0, fmt.Errorf("OpenAI API key not configured")
	}

	m, ok := p.models[model]
	if !ok {
		return "", 0, 0, fmt.Errorf("model %s not configured", model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}

	temperature := m.Temperature
	if t, ok := options["temperature"].(float64); ok {
		temperature = t
	}
	maxTokens := m.MaxTokens
	if mt, ok := options["max_tokens"].(int); ok {
		maxTokens = mt
	}

	type chatMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type chatReq struct {
		Model       string    `json:"model"`
		Messages    []chatMsg `json:"messages"`
		Temperature float64   `json:"temperature,omitempty"`
		MaxTokens   int       `json:"max_tokens,omitempty"`
	}

	baseURL := p.config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}

	err := p.http.DoJSON(ctx, "POST", baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + apiKey},
		chatReq{
			Model:       apiModel,
			Messages:    []chatMsg{{Role: "user", Content: prompt}},
			Temperature: temperature,
			MaxTokens:   maxTokens,
		}, &out)
	if err != nil {
		return "", 0, 0, err
	}
	if len(out.Choices) == 0 {
		return "", 0, 0, fmt.Errorf("no choices in response")
	}

	return out.Choices[0].Message.Content, int64(out.Usage.PromptTokens), int64(out.Usage.CompletionTokens), nil
}

// CalculateCost calculates the dollar cost for a given token usage.
func (p *OpenAIProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	m, ok := p.models[model]
	if !ok {
		return 0.0
	}
	return float64(inputTokens)/1000.0*m.CostPer1K + float64(outputTokens)/1000.0*m.CostPer1KOutput
}
