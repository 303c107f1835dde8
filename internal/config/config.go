package config

import (
	"fmt"
	"time"
)

// Config represents the main assistant configuration
type Config struct {
	// LLM backend
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Engine behavior
	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// Response cache
	Cache CacheConfig `json:"cache" mapstructure:"cache"`

	// Tool credentials
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // groq, openai, anthropic
	Model       string  `json:"model" mapstructure:"model"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// EngineConfig holds orchestration engine configuration
type EngineConfig struct {
	// MaxWorkers caps concurrent step executions within a layer
	MaxWorkers int `json:"max_workers" mapstructure:"max_workers"`
	// StepRetries bounds retries of a transiently failing step
	StepRetries int `json:"step_retries" mapstructure:"step_retries"`
	// PlanRetries bounds re-planning after a validation failure
	PlanRetries int `json:"plan_retries" mapstructure:"plan_retries"`
	// VerifyRetries bounds retries of a failing verification call
	VerifyRetries int `json:"verify_retries" mapstructure:"verify_retries"`
	// StepTimeoutSeconds bounds a single external call
	StepTimeoutSeconds int `json:"step_timeout_seconds" mapstructure:"step_timeout_seconds"`
}

// StepTimeout returns the per-step timeout as a duration.
func (e EngineConfig) StepTimeout() time.Duration {
	return time.Duration(e.StepTimeoutSeconds) * time.Second
}

// CacheConfig holds response cache configuration
type CacheConfig struct {
	// TTLSeconds is how long a tool response stays live
	TTLSeconds int `json:"ttl_seconds" mapstructure:"ttl_seconds"`
	// JanitorSchedule is a cron expression for background sweeps; empty disables
	JanitorSchedule string `json:"janitor_schedule" mapstructure:"janitor_schedule"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ToolsConfig holds per-tool credentials
type ToolsConfig struct {
	GitHubToken string `json:"github_token" mapstructure:"github_token"`
	NewsAPIKey  string `json:"news_api_key" mapstructure:"news_api_key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "groq",
			Model:       "llama-3.3-70b-versatile",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Engine: EngineConfig{
			MaxWorkers:         5,
			StepRetries:        3,
			PlanRetries:        1,
			VerifyRetries:      2,
			StepTimeoutSeconds: 30,
		},
		Cache: CacheConfig{
			TTLSeconds: 300,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "groq", "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported llm provider: %s", c.LLM.Provider)
	}

	if c.LLM.Model == "" {
		return fmt.Errorf("llm model cannot be empty")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("llm temperature must be between 0 and 1")
	}
	if c.Engine.MaxWorkers <= 0 {
		return fmt.Errorf("engine max_workers must be positive")
	}
	if c.Engine.StepRetries < 0 {
		return fmt.Errorf("engine step_retries cannot be negative")
	}
	if c.Engine.PlanRetries < 0 {
		return fmt.Errorf("engine plan_retries cannot be negative")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache ttl_seconds must be positive")
	}

	return nil
}
