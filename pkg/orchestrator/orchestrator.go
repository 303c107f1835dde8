package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fadhil/opsagent/internal/metrics"
	"github.com/fadhil/opsagent/pkg/cache"
	"github.com/fadhil/opsagent/pkg/llm"
	"github.com/fadhil/opsagent/pkg/tool"
)

// Config configures the orchestration engine.
type Config struct {
	Provider llm.Provider
	Registry *tool.Registry
	Cache    *cache.Cache
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger

	Model       string
	MaxTokens   int
	Temperature float64

	// MaxWorkers caps concurrent steps within a layer.
	MaxWorkers int
	// StepRetries bounds attempts for a transiently failing step.
	StepRetries int
	// PlanRetries bounds re-planning after a structurally invalid plan.
	PlanRetries int
	// VerifyRetries bounds attempts of a failing verification call.
	VerifyRetries int
	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration
	// CacheTTL is how long successful tool responses stay reusable.
	CacheTTL time.Duration
	// StepTimeout bounds a single tool invocation.
	StepTimeout time.Duration
}

// Engine drives a task through planning, layered execution, and
// verification, producing a structured answer with cost accounting.
// One rejected verification triggers a single re-plan; a second
// rejection yields the best-effort answer unverified.
type Engine struct {
	provider    llm.Provider
	registry    *tool.Registry
	cache       *cache.Cache
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	planRetries int
	cfg         Config
}

// New creates an engine. The cache is shared across runs so repeated
// identical tool calls keep paying nothing while their entries live.
func New(cfg Config) (*Engine, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New()
	}
	if cfg.PlanRetries < 0 {
		cfg.PlanRetries = 0
	}

	return &Engine{
		provider:    cfg.Provider,
		registry:    cfg.Registry,
		cache:       cfg.Cache,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.With().Str("component", "engine").Logger(),
		planRetries: cfg.PlanRetries,
		cfg:         cfg,
	}, nil
}

// Run executes one task end to end. It fails only when no valid plan
// could be produced; execution and verification degradations are
// reported inside the answer instead.
func (e *Engine) Run(ctx context.Context, text string) (*Answer, error) {
	start := time.Now()
	task := NewTask(text)
	costs := metrics.NewCostTracker(e.metrics)

	logger := e.logger.With().Str("task_id", task.ID).Logger()
	logger.Info().Str("task", text).Msg("Run started")

	planner := NewPlanner(PlannerConfig{
		Provider:    e.provider,
		Registry:    e.registry,
		Costs:       costs,
		Logger:      logger,
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	executor := NewExecutor(ExecutorConfig{
		Registry:     e.registry,
		Cache:        e.cache,
		Metrics:      e.metrics,
		Logger:       logger,
		MaxWorkers:   e.cfg.MaxWorkers,
		StepRetries:  e.cfg.StepRetries,
		RetryBackoff: e.cfg.RetryBackoff,
		CacheTTL:     e.cfg.CacheTTL,
		StepTimeout:  e.cfg.StepTimeout,
	})
	verifier := NewVerifier(VerifierConfig{
		Provider:    e.provider,
		Costs:       costs,
		Logger:      logger,
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Retries:     e.cfg.VerifyRetries,
	})

	plan, err := e.plan(ctx, planner, task, "")
	if err != nil {
		e.recordRun("failed", start)
		return nil, err
	}

	report := executor.Execute(ctx, plan)
	verdict := verifier.Verify(ctx, task, plan, report)

	// One bounded re-plan: the verifier's feedback steers the second
	// attempt, and its outcome is final either way.
	if !verdict.Accepted && verdict.Feedback != "" && ctx.Err() == nil {
		logger.Info().Str("feedback", verdict.Feedback).Msg("Verdict rejected, re-planning once")

		replan, err := e.plan(ctx, planner, task, verdict.Feedback)
		if err != nil {
			logger.Warn().Err(err).Msg("Re-plan failed, answering from first attempt")
		} else {
			plan = replan
			report = executor.Execute(ctx, plan)
			verdict = verifier.Verify(ctx, task, plan, report)
		}
	}

	answer := e.buildAnswer(task, plan, report, verdict, costs, time.Since(start))
	if verdict.Accepted {
		e.recordRun("succeeded", start)
	} else {
		e.recordRun("unverified", start)
	}
	logger.Info().
		Bool("verified", answer.Verified).
		Float64("cost_usd", answer.TotalCostUSD).
		Dur("latency", answer.Latency).
		Msg("Run finished")
	return answer, nil
}

// plan asks the planner for a plan, re-prompting with the violation on
// structurally invalid output up to PlanRetries extra attempts.
func (e *Engine) plan(ctx context.Context, planner *Planner, task Task, feedback string) (*Plan, error) {
	var lastErr error
	for attempt := 0; attempt <= e.planRetries; attempt++ {
		if e.metrics != nil {
			e.metrics.PlanAttempts.Inc()
		}

		plan, err := planner.Generate(ctx, task, feedback)
		if err == nil {
			if e.metrics != nil {
				e.metrics.PlansTotal.WithLabelValues("valid").Inc()
			}
			return plan, nil
		}
		lastErr = err

		var planErr *PlanningError
		if !errors.As(err, &planErr) {
			// Provider failures are not fixable by re-prompting.
			break
		}
		if e.metrics != nil {
			e.metrics.PlansTotal.WithLabelValues("invalid").Inc()
		}
		// Keep any verifier feedback alongside the new violation so the
		// retry still addresses the original objection.
		if feedback == "" {
			feedback = planErr.Violation
		} else {
			feedback = feedback + "; also " + planErr.Violation
		}
	}
	return nil, fmt.Errorf("planning failed: %w", lastErr)
}

func (e *Engine) buildAnswer(task Task, plan *Plan, report *ExecutionReport, verdict *Verdict, costs *metrics.CostTracker, latency time.Duration) *Answer {
	steps := make([]AnswerStep, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		as := AnswerStep{
			StepID:     step.ID,
			Capability: step.Capability,
			Args:       step.Args,
			Status:     StepSkipped,
		}
		if res := report.Result(step.ID); res != nil {
			as.Status = res.Status
			as.Output = res.Output
			as.Error = res.Error
			as.FromCache = res.FromCache
		}
		steps = append(steps, as)
	}

	summary := costs.Summary()
	return &Answer{
		TaskID:       task.ID,
		Summary:      verdict.Summary,
		Steps:        steps,
		TotalCostUSD: summary.TotalCostUSD,
		TotalTokens:  summary.TotalTokens,
		Verified:     verdict.Accepted,
		Latency:      latency,
	}
}

func (e *Engine) recordRun(status string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.RunsTotal.WithLabelValues(status).Inc()
	e.metrics.RunDuration.Observe(time.Since(start).Seconds())
}
