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
	"github.com/fadhil/opsagent/pkg/tool"
)

const plannerSystemPrompt = `You are a planning assistant. Decompose the user's task into the smallest set of steps that answers it, using only the tools listed below.

Respond with a JSON object of this shape:
{
  "steps": [
    {
      "id": "s1",
      "description": "what this step accomplishes",
      "capability": "tool_name",
      "args": {"param": "value"},
      "depends_on": []
    }
  ],
  "expected_outcome": "what a successful run produces"
}

Rules:
- Every step's capability must be one of the tools listed below, and its args must satisfy that tool's parameters.
- To pass the output of an earlier step as an argument, use "$ref:<step-id>" for the whole output or "$ref:<step-id>.<field>" for one field.
- Steps that do not depend on each other must not be chained; leave depends_on empty so they can run concurrently.
- Do not invent tools and do not add steps the task does not need.

Available tools:
%s`

// PlannerConfig configures a Planner.
type PlannerConfig struct {
	Provider    llm.Provider
	Registry    *tool.Registry
	Costs       *metrics.CostTracker
	Logger      zerolog.Logger
	Model       string
	MaxTokens   int
	Temperature float64
	Retries     int
}

// Planner turns a task into a validated execution plan by asking the
// model for a step decomposition over the registered tools.
type Planner struct {
	provider    llm.Provider
	registry    *tool.Registry
	costs       *metrics.CostTracker
	logger      zerolog.Logger
	model       string
	maxTokens   int
	temperature float64
	retries     int
}

// NewPlanner creates a planner.
func NewPlanner(cfg PlannerConfig) *Planner {
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	return &Planner{
		provider:    cfg.Provider,
		registry:    cfg.Registry,
		costs:       cfg.Costs,
		logger:      cfg.Logger.With().Str("component", "planner").Logger(),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		retries:     retries,
	}
}

// rawPlan mirrors the JSON shape the model is asked to produce.
type rawPlan struct {
	Steps           []Step `json:"steps"`
	ExpectedOutcome string `json:"expected_outcome"`
}

// Generate produces a plan for the task. feedback carries the
// verifier's objections on a re-plan and is empty on the first attempt.
// Structural violations surface as *PlanningError.
func (p *Planner) Generate(ctx context.Context, task Task, feedback string) (*Plan, error) {
	prompt := task.Text
	if feedback != "" {
		prompt = fmt.Sprintf("%s\n\nA previous plan for this task was rejected: %s\nProduce a corrected plan.", task.Text, feedback)
	}

	text, err := p.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("planning call failed: %w", err)
	}

	var raw rawPlan
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return nil, &PlanningError{Violation: "response is not valid plan JSON", Err: err}
	}
	if len(raw.Steps) == 0 {
		return nil, &PlanningError{Violation: "plan has no steps"}
	}

	plan := &Plan{
		ID:              newPlanID(),
		TaskID:          task.ID,
		Steps:           raw.Steps,
		ExpectedOutcome: raw.ExpectedOutcome,
	}

	p.assignIDs(plan)
	p.dropUnknownCapabilities(plan)
	if len(plan.Steps) == 0 {
		return nil, &PlanningError{Violation: "no step uses a known tool"}
	}
	if err := p.validate(plan); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("plan_id", plan.ID).
		Int("steps", len(plan.Steps)).
		Int("dropped", len(plan.Warnings)).
		Msg("Plan generated")

	return plan, nil
}

func (p *Planner) complete(ctx context.Context, prompt string) (string, error) {
	req := llm.Request{
		Model:        p.model,
		SystemPrompt: fmt.Sprintf(plannerSystemPrompt, p.toolCatalog()),
		Prompt:       prompt,
		Temperature:  p.temperature,
		MaxTokens:    p.maxTokens,
		JSONMode:     true,
	}

	var lastErr error
	for attempt := 0; attempt < p.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			p.logger.Warn().
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Retrying planning call")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		resp, err := p.provider.GenerateText(ctx, req)
		if err == nil {
			if p.costs != nil {
				p.costs.RecordLLMCall(p.model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
			}
			return resp.Text, nil
		}
		lastErr = err
		if !llm.IsRetryableError(err) {
			break
		}
	}
	return "", lastErr
}

// toolCatalog renders the registered tool schemas for the prompt.
func (p *Planner) toolCatalog() string {
	schemas := p.registry.Schemas()
	encoded, err := json.MarshalIndent(schemas, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

func (p *Planner) assignIDs(plan *Plan) {
	for i := range plan.Steps {
		if plan.Steps[i].ID == "" {
			plan.Steps[i].ID = fmt.Sprintf("s%d", i+1)
		}
	}
}

// dropUnknownCapabilities removes steps naming unregistered tools, and
// transitively every step depending on a removed one. Each removal is
// recorded as a plan warning.
func (p *Planner) dropUnknownCapabilities(plan *Plan) {
	dropped := make(map[string]string)
	for _, step := range plan.Steps {
		if !p.registry.Has(step.Capability) {
			dropped[step.ID] = fmt.Sprintf("step %s dropped: unknown tool %q", step.ID, step.Capability)
		}
	}
	if len(dropped) == 0 {
		return
	}

	for changed := true; changed; {
		changed = false
		for _, step := range plan.Steps {
			if _, gone := dropped[step.ID]; gone {
				continue
			}
			for _, dep := range stepDependencies(step) {
				if _, gone := dropped[dep]; gone {
					dropped[step.ID] = fmt.Sprintf("step %s dropped: depends on dropped step %s", step.ID, dep)
					changed = true
					break
				}
			}
		}
	}

	kept := plan.Steps[:0]
	for _, step := range plan.Steps {
		if reason, gone := dropped[step.ID]; gone {
			plan.Warnings = append(plan.Warnings, reason)
			p.logger.Warn().Str("plan_id", plan.ID).Msg(reason)
		} else {
			kept = append(kept, step)
		}
	}
	plan.Steps = kept
}

// validate enforces structural soundness: unique IDs, resolvable
// dependencies, acyclic ordering, and schema-valid args.
func (p *Planner) validate(plan *Plan) error {
	ids := make(map[string]bool, len(plan.Steps))
	for _, step := range plan.Steps {
		if ids[step.ID] {
			return &PlanningError{Violation: fmt.Sprintf("duplicate step id %q", step.ID)}
		}
		ids[step.ID] = true
	}

	// Dependencies must point backwards: a step may only reference
	// steps declared before it.
	declared := make(map[string]bool, len(plan.Steps))
	for _, step := range plan.Steps {
		for _, dep := range stepDependencies(step) {
			if !ids[dep] {
				return &PlanningError{Violation: fmt.Sprintf("step %q depends on unknown step %q", step.ID, dep)}
			}
			if !declared[dep] {
				return &PlanningError{Violation: fmt.Sprintf("step %q depends on step %q which is not declared before it", step.ID, dep)}
			}
		}
		declared[step.ID] = true
	}

	if _, err := computeLayers(plan); err != nil {
		return &PlanningError{Violation: "plan is not acyclic", Err: err}
	}

	for _, step := range plan.Steps {
		if hasRefArgs(step.Args) {
			// Referenced values are only known at run time.
			continue
		}
		if err := p.registry.Validate(step.Capability, step.Args); err != nil {
			return &PlanningError{Violation: fmt.Sprintf("step %q has invalid args for %s", step.ID, step.Capability), Err: err}
		}
	}

	return nil
}

func hasRefArgs(args map[string]interface{}) bool {
	for _, value := range args {
		if _, _, ok := parseRef(value); ok {
			return true
		}
	}
	return false
}

// stripFences removes a surrounding markdown code fence, which some
// models emit even in JSON mode.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
