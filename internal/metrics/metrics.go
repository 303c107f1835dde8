package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the orchestration engine.
type Metrics struct {
	registry *prometheus.Registry

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram

	// Plan metrics
	PlansTotal   *prometheus.CounterVec
	PlanAttempts prometheus.Counter

	// Step metrics
	StepsTotal   *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// LLM metrics
	LLMCallsTotal  *prometheus.CounterVec
	LLMTokensTotal *prometheus.CounterVec
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runs_total",
				Help: "Total number of task runs",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "run_duration_seconds",
				Help:    "Duration of task runs",
				Buckets: prometheus.DefBuckets,
			},
		),

		PlansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plans_total",
				Help: "Total number of plans produced",
			},
			[]string{"status"},
		),
		PlanAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "plan_attempts_total",
				Help: "Total number of planning attempts including re-plans",
			},
		),

		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steps_total",
				Help: "Total number of executed steps",
			},
			[]string{"capability", "status"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "step_duration_seconds",
				Help:    "Duration of step executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"capability"},
		),

		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
		),

		LLMCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_calls_total",
				Help: "Total number of LLM calls",
			},
			[]string{"model"},
		),
		LLMTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of LLM tokens consumed",
			},
			[]string{"model", "direction"},
		),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.PlansTotal,
		m.PlanAttempts,
		m.StepsTotal,
		m.StepDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.LLMCallsTotal,
		m.LLMTokensTotal,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordLLMCall records one LLM call's token usage.
func (m *Metrics) RecordLLMCall(model string, tokensIn, tokensOut int) {
	m.LLMCallsTotal.WithLabelValues(model).Inc()
	m.LLMTokensTotal.WithLabelValues(model, "input").Add(float64(tokensIn))
	m.LLMTokensTotal.WithLabelValues(model, "output").Add(float64(tokensOut))
}
