package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "groq", cfg.LLM.Provider)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Engine.MaxWorkers)
	assert.Equal(t, 3, cfg.Engine.StepRetries)
	assert.Equal(t, 1, cfg.Engine.PlanRetries)
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"bad provider", func(c *Config) { c.LLM.Provider = "groot" }, true},
		{"empty model", func(c *Config) { c.LLM.Model = "" }, true},
		{"temperature too high", func(c *Config) { c.LLM.Temperature = 1.5 }, true},
		{"zero workers", func(c *Config) { c.Engine.MaxWorkers = 0 }, true},
		{"negative step retries", func(c *Config) { c.Engine.StepRetries = -1 }, true},
		{"negative plan retries", func(c *Config) { c.Engine.PlanRetries = -1 }, true},
		{"zero cache ttl", func(c *Config) { c.Cache.TTLSeconds = 0 }, true},
		{"anthropic provider", func(c *Config) { c.LLM.Provider = "anthropic" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "5m0s", cfg.Cache.TTL().String())
	assert.Equal(t, "30s", cfg.Engine.StepTimeout().String())
}
