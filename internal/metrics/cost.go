package metrics

import (
	"math"
	"sync"
	"time"
)

// modelPricing is USD per 1K tokens.
type modelPricing struct {
	Input  float64
	Output float64
}

var modelPricingTable = map[string]modelPricing{
	// OpenAI models
	"gpt-4-turbo":   {Input: 0.01, Output: 0.03},
	"gpt-4":         {Input: 0.03, Output: 0.06},
	"gpt-4o":        {Input: 0.005, Output: 0.015},
	"gpt-3.5-turbo": {Input: 0.0005, Output: 0.0015},
	// Anthropic models
	"claude-3-5-sonnet-20241022": {Input: 0.003, Output: 0.015},
	"claude-3-5-haiku-20241022":  {Input: 0.0008, Output: 0.004},
	// Groq-hosted models
	"llama-3.3-70b-versatile": {Input: 0.00059, Output: 0.00079},
	"llama-3.1-8b-instant":    {Input: 0.00005, Output: 0.00008},
	"mixtral-8x7b-32768":      {Input: 0.00024, Output: 0.00024},
	"gemma2-9b-it":            {Input: 0.0002, Output: 0.0002},
}

var defaultPricing = modelPricing{Input: 0.01, Output: 0.03}

// LLMCall records token usage and estimated cost for a single LLM call.
type LLMCall struct {
	Model     string    `json:"model"`
	TokensIn  int       `json:"tokens_in"`
	TokensOut int       `json:"tokens_out"`
	CostUSD   float64   `json:"cost_usd"`
	Timestamp time.Time `json:"timestamp"`
}

// CostSummary aggregates usage over a set of LLM calls.
type CostSummary struct {
	TotalTokensIn  int     `json:"total_tokens_in"`
	TotalTokensOut int     `json:"total_tokens_out"`
	TotalTokens    int     `json:"total_tokens"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	LLMCalls       int     `json:"llm_calls"`
}

// CostTracker accumulates token usage and estimated cost for one task run.
// Safe for concurrent use.
type CostTracker struct {
	mu      sync.Mutex
	calls   []LLMCall
	metrics *Metrics
}

// NewCostTracker creates a cost tracker. metrics may be nil.
func NewCostTracker(m *Metrics) *CostTracker {
	return &CostTracker{metrics: m}
}

// RecordLLMCall records one call and returns it with the calculated cost.
func (t *CostTracker) RecordLLMCall(model string, tokensIn, tokensOut int) LLMCall {
	call := LLMCall{
		Model:     model,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		CostUSD:   EstimateCost(model, tokensIn, tokensOut),
		Timestamp: time.Now(),
	}

	t.mu.Lock()
	t.calls = append(t.calls, call)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordLLMCall(model, tokensIn, tokensOut)
	}

	return call
}

// Summary returns aggregate usage across all recorded calls.
func (t *CostTracker) Summary() CostSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := CostSummary{LLMCalls: len(t.calls)}
	for _, c := range t.calls {
		s.TotalTokensIn += c.TokensIn
		s.TotalTokensOut += c.TokensOut
		s.TotalCostUSD += c.CostUSD
	}
	s.TotalTokens = s.TotalTokensIn + s.TotalTokensOut
	s.TotalCostUSD = roundUSD(s.TotalCostUSD)
	return s
}

// EstimateCost calculates the USD cost of a call from the per-model pricing
// table; unknown models fall back to a conservative default.
func EstimateCost(model string, tokensIn, tokensOut int) float64 {
	pricing, ok := modelPricingTable[model]
	if !ok {
		pricing = defaultPricing
	}

	cost := float64(tokensIn)/1000*pricing.Input + float64(tokensOut)/1000*pricing.Output
	return roundUSD(cost)
}

func roundUSD(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
