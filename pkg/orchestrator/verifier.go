package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fadhil/opsagent/internal/metrics"
	"github.com/fadhil/opsagent/pkg/llm"
)

const verifierSystemPrompt = `You are a results verifier. Given a task, the plan that was run for it, and the per-step results, judge whether the results answer the task.

Respond with a JSON object:
{
  "accepted": true,
  "summary": "a concise answer to the task grounded in the step outputs",
  "feedback": "when rejecting, what the next plan must do differently"
}

Reject only when the results cannot answer the task: missing data, failed steps the task needed, or outputs contradicting the request. Partial but sufficient results are acceptable. Never invent data absent from the step outputs.`

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	Provider    llm.Provider
	Costs       *metrics.CostTracker
	Logger      zerolog.Logger
	Model       string
	MaxTokens   int
	Temperature float64
	Retries     int
}

// Verifier judges an execution report against the task and produces
// the user-facing summary. When the model is unreachable it falls back
// to a deterministic judgment so a run always ends with a verdict.
type Verifier struct {
	provider    llm.Provider
	costs       *metrics.CostTracker
	logger      zerolog.Logger
	model       string
	maxTokens   int
	temperature float64
	retries     int
}

// NewVerifier creates a verifier.
func NewVerifier(cfg VerifierConfig) *Verifier {
	retries := cfg.Retries
	if retries <= 0 {
		retries = 2
	}
	return &Verifier{
		provider:    cfg.Provider,
		costs:       cfg.Costs,
		logger:      cfg.Logger.With().Str("component", "verifier").Logger(),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		retries:     retries,
	}
}

// Verify judges the report. It always returns a verdict; model
// failures degrade to FallbackVerdict rather than failing the run.
func (v *Verifier) Verify(ctx context.Context, task Task, plan *Plan, report *ExecutionReport) *Verdict {
	prompt, err := v.buildPrompt(task, plan, report)
	if err != nil {
		v.logger.Error().Err(err).Msg("Failed to encode verification prompt")
		return FallbackVerdict(task, report)
	}

	var lastErr error
	for attempt := 0; attempt < v.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return FallbackVerdict(task, report)
			}
		}

		resp, err := v.provider.GenerateText(ctx, llm.Request{
			Model:        v.model,
			SystemPrompt: verifierSystemPrompt,
			Prompt:       prompt,
			Temperature:  v.temperature,
			MaxTokens:    v.maxTokens,
			JSONMode:     true,
		})
		if err != nil {
			lastErr = err
			if !llm.IsRetryableError(err) {
				break
			}
			continue
		}
		if v.costs != nil {
			v.costs.RecordLLMCall(v.model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		}

		var verdict Verdict
		if err := json.Unmarshal([]byte(stripFences(resp.Text)), &verdict); err != nil {
			lastErr = fmt.Errorf("verdict is not valid JSON: %w", err)
			continue
		}
		if verdict.Summary == "" {
			verdict.Summary = FallbackVerdict(task, report).Summary
		}
		v.logger.Info().
			Str("plan_id", plan.ID).
			Bool("accepted", verdict.Accepted).
			Msg("Verification complete")
		return &verdict
	}

	v.logger.Warn().Err(lastErr).Msg("Verification call failed, using deterministic verdict")
	return FallbackVerdict(task, report)
}

func (v *Verifier) buildPrompt(task Task, plan *Plan, report *ExecutionReport) (string, error) {
	type stepView struct {
		ID          string                 `json:"id"`
		Description string                 `json:"description"`
		Capability  string                 `json:"capability"`
		Status      StepStatus             `json:"status"`
		Output      map[string]interface{} `json:"output,omitempty"`
		Error       string                 `json:"error,omitempty"`
	}

	views := make([]stepView, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		view := stepView{
			ID:          step.ID,
			Description: step.Description,
			Capability:  step.Capability,
			Status:      StepSkipped,
		}
		if res := report.Result(step.ID); res != nil {
			view.Status = res.Status
			view.Output = res.Output
			view.Error = res.Error
		}
		views = append(views, view)
	}

	encoded, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task.Text)
	if plan.ExpectedOutcome != "" {
		fmt.Fprintf(&b, "Expected outcome: %s\n\n", plan.ExpectedOutcome)
	}
	fmt.Fprintf(&b, "Step results:\n%s\n", encoded)
	return b.String(), nil
}

// FallbackVerdict judges a report without the model: accepted when
// every step succeeded, rejected otherwise, with a mechanical summary.
func FallbackVerdict(task Task, report *ExecutionReport) *Verdict {
	failed := report.Failed()
	skipped := report.Skipped()
	succeeded := report.Succeeded()

	if failed == 0 && skipped == 0 {
		return &Verdict{
			Accepted: true,
			Summary:  fmt.Sprintf("All %d steps completed for: %s", succeeded, task.Text),
		}
	}
	return &Verdict{
		Accepted: false,
		Summary:  fmt.Sprintf("%d of %d steps completed for: %s", succeeded, len(report.Results), task.Text),
		Feedback: fmt.Sprintf("%d steps failed and %d were skipped", failed, skipped),
	}
}
