package orchestrator

import (
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Task is a natural-language request submitted to the engine.
type Task struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTask wraps raw request text in a tracked task.
func NewTask(text string) Task {
	return Task{
		ID:        uuid.New().String(),
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// Step is a single unit of work inside a plan. Args may reference the
// output of an earlier step with "$ref:<step-id>" (whole output) or
// "$ref:<step-id>.<field>" (one field of it); referenced steps are
// implied dependencies even when absent from DependsOn.
type Step struct {
	ID          string                 `json:"id"`
	Description string                 `json:"description"`
	Capability  string                 `json:"capability"`
	Args        map[string]interface{} `json:"args"`
	DependsOn   []string               `json:"depends_on,omitempty"`
}

// Plan is an ordered set of steps produced by the planner.
type Plan struct {
	ID              string   `json:"id"`
	TaskID          string   `json:"task_id"`
	Steps           []Step   `json:"steps"`
	ExpectedOutcome string   `json:"expected_outcome"`
	Warnings        []string `json:"warnings,omitempty"`
}

func newPlanID() string {
	id, err := gonanoid.New()
	if err != nil {
		return uuid.New().String()
	}
	return id
}

// Step returns the step with the given ID, or nil.
func (p *Plan) Step(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// StepStatus is the terminal state of an executed step.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepUsage accounts for LLM spend attributed to a step. Tool-backed
// steps carry zero usage.
type StepUsage struct {
	Tokens  int     `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// StepResult records the outcome of one step.
type StepResult struct {
	StepID    string                 `json:"step_id"`
	Status    StepStatus             `json:"status"`
	Output    map[string]interface{} `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Latency   time.Duration          `json:"latency"`
	Usage     StepUsage              `json:"usage"`
	FromCache bool                   `json:"from_cache"`
	Attempts  int                    `json:"attempts"`
}

// ExecutionReport collects the results of one pass over a plan.
type ExecutionReport struct {
	PlanID  string        `json:"plan_id"`
	Results []StepResult  `json:"results"`
	Elapsed time.Duration `json:"elapsed"`
}

// Result returns the result for a step, or nil when the step never ran.
func (r *ExecutionReport) Result(stepID string) *StepResult {
	for i := range r.Results {
		if r.Results[i].StepID == stepID {
			return &r.Results[i]
		}
	}
	return nil
}

func (r *ExecutionReport) countStatus(status StepStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Succeeded returns the number of steps that completed successfully.
func (r *ExecutionReport) Succeeded() int { return r.countStatus(StepSucceeded) }

// Failed returns the number of steps that exhausted their retries.
func (r *ExecutionReport) Failed() int { return r.countStatus(StepFailed) }

// Skipped returns the number of steps dropped because a dependency
// failed or the deadline passed.
func (r *ExecutionReport) Skipped() int { return r.countStatus(StepSkipped) }

// TotalUsage sums LLM spend across all step results.
func (r *ExecutionReport) TotalUsage() StepUsage {
	var total StepUsage
	for _, res := range r.Results {
		total.Tokens += res.Usage.Tokens
		total.CostUSD += res.Usage.CostUSD
	}
	return total
}

// Verdict is the verifier's judgment of an execution report.
type Verdict struct {
	Accepted bool   `json:"accepted"`
	Summary  string `json:"summary"`
	Feedback string `json:"feedback,omitempty"`
}

// AnswerStep is the per-step breakdown included in an answer.
type AnswerStep struct {
	StepID     string                 `json:"step_id"`
	Capability string                 `json:"capability"`
	Args       map[string]interface{} `json:"args,omitempty"`
	Status     StepStatus             `json:"status"`
	Output     map[string]interface{} `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	FromCache  bool                   `json:"from_cache"`
}

// Answer is the engine's final response to a task.
type Answer struct {
	TaskID       string        `json:"task_id"`
	Summary      string        `json:"summary"`
	Steps        []AnswerStep  `json:"steps"`
	TotalCostUSD float64       `json:"total_cost_usd"`
	TotalTokens  int           `json:"total_tokens"`
	Verified     bool          `json:"verified"`
	Latency      time.Duration `json:"latency"`
}
