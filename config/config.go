package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research assistant
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Search    SearchConfig    `mapstructure:"search"`
	Email     EmailConfig     `mapstructure:"email"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
	// JWTSecret signs session tokens. Required only when auth is enabled.
	JWTSecret string `mapstructure:"jwt_secret"`
	// APIPasswordHash is a bcrypt hash of the single-tenant API password.
	// Empty hash disables auth entirely (all endpoints open).
	APIPasswordHash  string `mapstructure:"api_password_hash"`
	RunStreamEnabled bool   `mapstructure:"run_stream_enabled"`
}

func (s ServerConfig) Validate() error {
	if s.APIPasswordHash != "" && strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("server.jwt_secret required when server.api_password_hash is set")
	}
	return nil
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai for now
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model handles each pipeline stage
type LLMRoutingConfig struct {
	Clarify   string `mapstructure:"clarify"`
	Planning  string `mapstructure:"planning"`
	Research  string `mapstructure:"research"`  // search-result condensation
	Synthesis string `mapstructure:"synthesis"` // report writing
	Guardrail string `mapstructure:"guardrail"` // query/report vetting
	Fallback  string `mapstructure:"fallback"`
}

// Model resolves a routed model name, falling back when a slot is unset.
func (r LLMRoutingConfig) Model(slot string) string {
	m := ""
	switch slot {
	case "clarify":
		m = r.Clarify
	case "planning":
		m = r.Planning
	case "research":
		m = r.Research
	case "synthesis":
		m = r.Synthesis
	case "guardrail":
		m = r.Guardrail
	}
	if m == "" {
		m = r.Fallback
	}
	return m
}

// AgentsConfig bounds the pipeline's fan-out and stage timeouts
type AgentsConfig struct {
	// MaxSearchTasks caps the planner output; plans are clamped, never extended.
	MaxSearchTasks int `mapstructure:"max_search_tasks"`
	// ClarifyQuestions is the number of clarifying questions to request; 0 disables clarification.
	ClarifyQuestions int `mapstructure:"clarify_questions"`
	// GuardrailsEnabled gates queries and reports through the guardrail agent.
	GuardrailsEnabled     bool          `mapstructure:"guardrails_enabled"`
	MaxConcurrentSearches int           `mapstructure:"max_concurrent_searches"`
	SearchTimeout         time.Duration `mapstructure:"search_timeout"`
	StageTimeout          time.Duration `mapstructure:"stage_timeout"`
	MaxRetries            int           `mapstructure:"max_retries"`
}

func (a AgentsConfig) Validate() error {
	if a.MaxSearchTasks <= 0 {
		return fmt.Errorf("agents.max_search_tasks must be > 0")
	}
	if a.MaxConcurrentSearches <= 0 {
		return fmt.Errorf("agents.max_concurrent_searches must be > 0")
	}
	return nil
}

// SearchConfig contains web search settings
type SearchConfig struct {
	Provider     string        `mapstructure:"provider"` // brave or serper
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	// FetchTopResult pulls the first hit's page text through readability
	// so the condenser sees more than search snippets.
	FetchTopResult bool          `mapstructure:"fetch_top_result"`
	FetchMaxChars  int           `mapstructure:"fetch_max_chars"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

func (s SearchConfig) APIKey() string {
	if s.Provider == "serper" {
		return s.SerperAPIKey
	}
	return s.BraveAPIKey
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "", "brave", "serper":
	default:
		return fmt.Errorf("search.provider must be brave or serper, got %q", s.Provider)
	}
	return nil
}

// EmailConfig contains SendGrid delivery settings.
// An empty api_key degrades email delivery to a no-op.
type EmailConfig struct {
	SendGridAPIKey string        `mapstructure:"sendgrid_api_key"`
	From           string        `mapstructure:"from"`
	Endpoint       string        `mapstructure:"endpoint"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

func (e EmailConfig) Validate() error {
	if e.SendGridAPIKey != "" && strings.TrimSpace(e.From) == "" {
		return fmt.Errorf("email.from required when email.sendgrid_api_key is set")
	}
	return nil
}

// NotifyConfig contains completion webhook settings.
// An empty webhook_url degrades notification to a no-op.
type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// StorageConfig contains run-history persistence settings
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings.
// An empty host falls back to the in-memory run store.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) != "" && strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when host is set")
	}
	return nil
}

// TelemetryConfig contains monitoring settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// LoadConfig loads config from file, with SCOUT_* env overrides.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("server.run_stream_enabled", true)
	viper.SetDefault("agents.max_search_tasks", 5)
	viper.SetDefault("agents.clarify_questions", 3)
	viper.SetDefault("agents.guardrails_enabled", true)
	viper.SetDefault("agents.max_concurrent_searches", 5)
	viper.SetDefault("agents.search_timeout", "45s")
	viper.SetDefault("agents.stage_timeout", "2m")
	viper.SetDefault("agents.max_retries", 2)
	viper.SetDefault("search.provider", "brave")
	viper.SetDefault("search.max_results", 5)
	viper.SetDefault("search.fetch_top_result", true)
	viper.SetDefault("search.fetch_max_chars", 8000)
	viper.SetDefault("search.timeout", "15s")
	viper.SetDefault("email.endpoint", "https://api.sendgrid.com/v3/mail/send")
	viper.SetDefault("email.timeout", "20s")
	viper.SetDefault("notify.timeout", "10s")
	viper.SetDefault("storage.redis.timeout", "5s")
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("SCOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional: env vars plus defaults are a valid setup.
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Server.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Agents.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Search.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Email.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.Redis.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
