package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	m := New()

	if m == nil {
		t.Fatal("New returned nil")
	}
	if m.registry == nil {
		t.Error("Registry is nil")
	}
	if m.RunsTotal == nil {
		t.Error("RunsTotal is nil")
	}
	if m.PlansTotal == nil {
		t.Error("PlansTotal is nil")
	}
	if m.StepsTotal == nil {
		t.Error("StepsTotal is nil")
	}
	if m.CacheHitsTotal == nil {
		t.Error("CacheHitsTotal is nil")
	}
	if m.LLMTokensTotal == nil {
		t.Error("LLMTokensTotal is nil")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RunsTotal.WithLabelValues("verified").Inc()
	m.RecordLLMCall("llama-3.3-70b-versatile", 100, 50)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "runs_total") {
		t.Error("runs_total not exposed")
	}
	if !strings.Contains(body, "llm_tokens_total") {
		t.Error("llm_tokens_total not exposed")
	}
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		model     string
		tokensIn  int
		tokensOut int
		want      float64
	}{
		{"llama-3.3-70b-versatile", 1000, 1000, 0.00138},
		{"gpt-4", 1000, 0, 0.03},
		{"unknown-model", 1000, 1000, 0.04},
		{"gpt-4o", 0, 0, 0},
	}

	for _, tt := range tests {
		got := EstimateCost(tt.model, tt.tokensIn, tt.tokensOut)
		if got != tt.want {
			t.Errorf("EstimateCost(%s, %d, %d) = %v, want %v", tt.model, tt.tokensIn, tt.tokensOut, got, tt.want)
		}
	}
}

func TestCostTrackerSummary(t *testing.T) {
	tracker := NewCostTracker(nil)
	tracker.RecordLLMCall("gpt-4", 1000, 500)
	tracker.RecordLLMCall("gpt-4", 2000, 1000)

	s := tracker.Summary()
	if s.LLMCalls != 2 {
		t.Errorf("LLMCalls = %d, want 2", s.LLMCalls)
	}
	if s.TotalTokensIn != 3000 {
		t.Errorf("TotalTokensIn = %d, want 3000", s.TotalTokensIn)
	}
	if s.TotalTokens != 4500 {
		t.Errorf("TotalTokens = %d, want 4500", s.TotalTokens)
	}
	// 3000 in * 0.03/1K + 1500 out * 0.06/1K
	if s.TotalCostUSD != 0.18 {
		t.Errorf("TotalCostUSD = %v, want 0.18", s.TotalCostUSD)
	}
}

func TestCostTrackerRecordsMetrics(t *testing.T) {
	m := New()
	tracker := NewCostTracker(m)
	tracker.RecordLLMCall("gpt-4o", 10, 5)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `llm_calls_total{model="gpt-4o"} 1`) {
		t.Error("llm_calls_total not recorded")
	}
}
