package cli

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fadhil/opsagent/internal/config"
	"github.com/fadhil/opsagent/internal/metrics"
	"github.com/fadhil/opsagent/pkg/orchestrator"
	"github.com/fadhil/opsagent/pkg/tool"
)

func TestRegisterBuiltins(t *testing.T) {
	t.Run("weather always available", func(t *testing.T) {
		registry := tool.NewRegistry()
		err := registerBuiltins(registry, config.DefaultConfig())
		assert.NoError(t, err)

		assert.True(t, registry.Has("get_weather"))
		assert.False(t, registry.Has("github_search"))
		assert.False(t, registry.Has("search_news"))
	})

	t.Run("credentials unlock tools", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Tools.GitHubToken = "ghp-test"
		cfg.Tools.NewsAPIKey = "news-test"

		registry := tool.NewRegistry()
		err := registerBuiltins(registry, cfg)
		assert.NoError(t, err)

		assert.Equal(t, []string{"get_weather", "github_search", "search_news"}, registry.List())
	})
}

func TestMetricsMuxServesRegistry(t *testing.T) {
	m := metrics.New()
	m.CacheHitsTotal.Inc()

	server := httptest.NewServer(metricsMux(m))
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "cache_hits_total 1")
}

func TestPrintAnswer(t *testing.T) {
	answer := &orchestrator.Answer{
		Summary: "It is sunny in Oslo.",
		Steps: []orchestrator.AnswerStep{
			{StepID: "s1", Capability: "get_weather", Status: orchestrator.StepSucceeded, FromCache: true},
			{StepID: "s2", Capability: "search_news", Status: orchestrator.StepFailed, Error: "boom"},
		},
		TotalCostUSD: 0.000123,
		TotalTokens:  450,
		Verified:     true,
		Latency:      1500 * time.Millisecond,
	}

	cmd := &cobra.Command{}
	output := &bytes.Buffer{}
	cmd.SetOut(output)

	printAnswer(cmd, answer)
	text := output.String()

	assert.Contains(t, text, "It is sunny in Oslo.")
	assert.Contains(t, text, "[succeeded] s1 (get_weather) cached")
	assert.Contains(t, text, "[failed] s2 (search_news) - boom")
	assert.Contains(t, text, "verified: yes")
	assert.Contains(t, text, "tokens: 450")
}
