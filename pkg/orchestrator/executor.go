package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fadhil/opsagent/internal/metrics"
	"github.com/fadhil/opsagent/pkg/cache"
	"github.com/fadhil/opsagent/pkg/tool"
)

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	Registry *tool.Registry
	Cache    *cache.Cache
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	// MaxWorkers caps concurrent steps within a layer.
	MaxWorkers int
	// StepRetries bounds attempts for a transiently failing step.
	StepRetries int
	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration
	// CacheTTL is how long successful tool responses stay reusable.
	CacheTTL time.Duration
	// StepTimeout bounds a single tool invocation.
	StepTimeout time.Duration
}

// Executor runs a plan layer by layer, fanning steps within a layer
// out across a bounded worker pool. Identical tool calls are deduplicated
// through the response cache.
type Executor struct {
	registry    *tool.Registry
	cache       *cache.Cache
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	maxWorkers  int
	stepRetries int
	backoff     time.Duration
	cacheTTL    time.Duration
	stepTimeout time.Duration
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 5
	}
	if cfg.StepRetries <= 0 {
		cfg.StepRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 30 * time.Second
	}
	return &Executor{
		registry:    cfg.Registry,
		cache:       cfg.Cache,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.With().Str("component", "executor").Logger(),
		maxWorkers:  cfg.MaxWorkers,
		stepRetries: cfg.StepRetries,
		backoff:     cfg.RetryBackoff,
		cacheTTL:    cfg.CacheTTL,
		stepTimeout: cfg.StepTimeout,
	}
}

// Execute runs every step of the plan and always returns a full
// report: each step ends succeeded, failed, or skipped. Cancelling ctx
// stops new work; steps not yet started are reported skipped.
func (e *Executor) Execute(ctx context.Context, plan *Plan) *ExecutionReport {
	start := time.Now()
	report := &ExecutionReport{PlanID: plan.ID}

	layers, err := computeLayers(plan)
	if err != nil {
		// Plans are validated before execution; a cycle here means the
		// plan was mutated in between.
		for _, step := range plan.Steps {
			report.Results = append(report.Results, StepResult{
				StepID: step.ID,
				Status: StepFailed,
				Error:  err.Error(),
			})
		}
		report.Elapsed = time.Since(start)
		return report
	}

	outputs := make(map[string]map[string]interface{})
	status := make(map[string]StepStatus)

	for i, layer := range layers {
		e.logger.Debug().
			Str("plan_id", plan.ID).
			Int("layer", i).
			Int("steps", len(layer)).
			Msg("Executing layer")

		results := e.runLayer(ctx, plan, layer, outputs, status)
		for _, res := range results {
			status[res.StepID] = res.Status
			if res.Status == StepSucceeded {
				outputs[res.StepID] = res.Output
			}
			report.Results = append(report.Results, res)
		}
	}

	report.Elapsed = time.Since(start)
	e.logger.Info().
		Str("plan_id", plan.ID).
		Int("succeeded", report.Succeeded()).
		Int("failed", report.Failed()).
		Int("skipped", report.Skipped()).
		Dur("elapsed", report.Elapsed).
		Msg("Plan executed")
	return report
}

// runLayer executes one layer's steps concurrently, capped by the
// worker pool. Results come back in the layer's (sorted) step order.
func (e *Executor) runLayer(ctx context.Context, plan *Plan, layer []string, outputs map[string]map[string]interface{}, status map[string]StepStatus) []StepResult {
	results := make([]StepResult, len(layer))
	sem := make(chan struct{}, e.maxWorkers)
	var wg sync.WaitGroup

	for i, stepID := range layer {
		step := plan.Step(stepID)

		if blocker := e.failedDependency(step, status); blocker != "" {
			results[i] = StepResult{
				StepID: step.ID,
				Status: StepSkipped,
				Error:  fmt.Sprintf("dependency %s did not succeed", blocker),
			}
			e.recordStep(step.Capability, StepSkipped, 0)
			continue
		}
		if ctx.Err() != nil {
			results[i] = StepResult{
				StepID: step.ID,
				Status: StepSkipped,
				Error:  "deadline exceeded before step started",
			}
			e.recordStep(step.Capability, StepSkipped, 0)
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, step *Step) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.runStep(ctx, step, outputs)
		}(i, step)
	}

	wg.Wait()
	return results
}

func (e *Executor) failedDependency(step *Step, status map[string]StepStatus) string {
	for _, dep := range stepDependencies(*step) {
		if s, ok := status[dep]; ok && s != StepSucceeded {
			return dep
		}
	}
	return ""
}

// runStep resolves the step's args, then executes the tool through the
// cache with bounded retries on transient failures.
func (e *Executor) runStep(ctx context.Context, step *Step, outputs map[string]map[string]interface{}) StepResult {
	start := time.Now()
	result := StepResult{StepID: step.ID}

	args, err := resolveArgs(step.Args, outputs)
	if err != nil {
		result.Status = StepFailed
		result.Error = err.Error()
		result.Latency = time.Since(start)
		e.recordStep(step.Capability, StepFailed, result.Latency)
		return result
	}

	if err := e.registry.Validate(step.Capability, args); err != nil {
		result.Status = StepFailed
		result.Error = fmt.Sprintf("invalid args: %v", err)
		result.Latency = time.Since(start)
		e.recordStep(step.Capability, StepFailed, result.Latency)
		return result
	}

	fingerprint := cache.Fingerprint(step.Capability, args)
	attempts := 0

	value, fromCache, err := e.cache.Do(ctx, fingerprint, e.cacheTTL, func(ctx context.Context) (interface{}, error) {
		return e.invoke(ctx, step.Capability, args, &attempts)
	})

	result.Latency = time.Since(start)
	result.FromCache = fromCache
	result.Attempts = attempts

	if e.metrics != nil {
		if fromCache {
			e.metrics.CacheHitsTotal.Inc()
		} else {
			e.metrics.CacheMissesTotal.Inc()
		}
	}

	if err != nil {
		result.Status = StepFailed
		result.Error = err.Error()
		e.recordStep(step.Capability, StepFailed, result.Latency)
		e.logger.Warn().
			Str("step", step.ID).
			Str("capability", step.Capability).
			Int("attempts", attempts).
			Err(err).
			Msg("Step failed")
		return result
	}

	output, _ := value.(map[string]interface{})
	result.Status = StepSucceeded
	result.Output = output
	e.recordStep(step.Capability, StepSucceeded, result.Latency)
	e.logger.Debug().
		Str("step", step.ID).
		Str("capability", step.Capability).
		Bool("from_cache", fromCache).
		Dur("latency", result.Latency).
		Msg("Step succeeded")
	return result
}

// invoke calls the tool with per-attempt timeouts, retrying transient
// failures with doubling backoff.
func (e *Executor) invoke(ctx context.Context, capability string, args map[string]interface{}, attempts *int) (interface{}, error) {
	def, err := e.registry.Resolve(capability)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < e.stepRetries; attempt++ {
		if attempt > 0 {
			backoff := e.backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		*attempts = attempt + 1

		callCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
		output, err := def.Handler(callCtx, args)
		cancel()

		if err == nil {
			return output, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
		if !tool.IsTransient(err) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (e *Executor) recordStep(capability string, status StepStatus, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.StepsTotal.WithLabelValues(capability, string(status)).Inc()
	if status != StepSkipped {
		e.metrics.StepDuration.WithLabelValues(capability).Observe(latency.Seconds())
	}
}
