package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlanner(provider *fakeProvider) *Planner {
	return NewPlanner(PlannerConfig{
		Provider: provider,
		Registry: newTestRegistry(),
		Logger:   testLogger(),
		Model:    "llama-3.3-70b-versatile",
	})
}

func TestPlannerGenerate(t *testing.T) {
	provider := &fakeProvider{responses: []interface{}{`{
		"steps": [
			{"id": "s1", "description": "echo a", "capability": "echo", "args": {"value": "a"}},
			{"id": "s2", "description": "echo b", "capability": "echo", "args": {"value": "$ref:s1.value"}}
		],
		"expected_outcome": "two echoes"
	}`}}

	plan, err := newTestPlanner(provider).Generate(context.Background(), NewTask("echo twice"), "")
	require.NoError(t, err)

	assert.NotEmpty(t, plan.ID)
	assert.Len(t, plan.Steps, 2)
	assert.Equal(t, "two echoes", plan.ExpectedOutcome)
	assert.Equal(t, []string{"s1"}, stepDependencies(plan.Steps[1]))
}

func TestPlannerStripsMarkdownFence(t *testing.T) {
	provider := &fakeProvider{responses: []interface{}{
		"```json\n{\"steps\": [{\"capability\": \"echo\", \"args\": {\"value\": \"a\"}}]}\n```",
	}}

	plan, err := newTestPlanner(provider).Generate(context.Background(), NewTask("echo"), "")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	// Unnamed steps get positional IDs.
	assert.Equal(t, "s1", plan.Steps[0].ID)
}

func TestPlannerDropsUnknownCapabilityTransitively(t *testing.T) {
	provider := &fakeProvider{responses: []interface{}{`{
		"steps": [
			{"id": "s1", "capability": "echo", "args": {"value": "a"}},
			{"id": "s2", "capability": "teleport", "args": {}},
			{"id": "s3", "capability": "echo", "args": {"value": "$ref:s2"}}
		]
	}`}}

	plan, err := newTestPlanner(provider).Generate(context.Background(), NewTask("mixed"), "")
	require.NoError(t, err)

	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "s1", plan.Steps[0].ID)
	assert.Len(t, plan.Warnings, 2)
}

func TestPlannerRejectsInvalidPlans(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"not json", "definitely not json"},
		{"no steps", `{"steps": []}`},
		{"duplicate ids", `{"steps": [
			{"id": "s1", "capability": "echo", "args": {"value": "a"}},
			{"id": "s1", "capability": "echo", "args": {"value": "b"}}
		]}`},
		{"unknown dependency", `{"steps": [
			{"id": "s1", "capability": "echo", "args": {"value": "a"}, "depends_on": ["s9"]}
		]}`},
		{"forward reference", `{"steps": [
			{"id": "s1", "capability": "echo", "args": {"value": "a"}, "depends_on": ["s2"]},
			{"id": "s2", "capability": "echo", "args": {"value": "b"}}
		]}`},
		{"cycle", `{"steps": [
			{"id": "s1", "capability": "echo", "args": {"value": "a"}, "depends_on": ["s2"]},
			{"id": "s2", "capability": "echo", "args": {"value": "b"}, "depends_on": ["s1"]}
		]}`},
		{"missing required arg", `{"steps": [
			{"id": "s1", "capability": "echo", "args": {}}
		]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{responses: []interface{}{tt.response}}
			_, err := newTestPlanner(provider).Generate(context.Background(), NewTask("x"), "")
			require.Error(t, err)

			var planErr *PlanningError
			assert.ErrorAs(t, err, &planErr)
		})
	}
}

func TestPlannerFeedbackReachesPrompt(t *testing.T) {
	provider := &fakeProvider{responses: []interface{}{
		`{"steps": [{"id": "s1", "capability": "echo", "args": {"value": "a"}}]}`,
	}}

	_, err := newTestPlanner(provider).Generate(context.Background(), NewTask("echo"), "missing the forecast")
	require.NoError(t, err)

	require.Len(t, provider.requests, 1)
	assert.Contains(t, provider.requests[0].Prompt, "missing the forecast")
	assert.True(t, provider.requests[0].JSONMode)
}

func TestPlannerRecordsCost(t *testing.T) {
	provider := &fakeProvider{responses: []interface{}{
		`{"steps": [{"id": "s1", "capability": "echo", "args": {"value": "a"}}]}`,
	}}
	costs := newCostTracker()

	planner := NewPlanner(PlannerConfig{
		Provider: provider,
		Registry: newTestRegistry(),
		Costs:    costs,
		Logger:   testLogger(),
		Model:    "llama-3.3-70b-versatile",
	})

	_, err := planner.Generate(context.Background(), NewTask("echo"), "")
	require.NoError(t, err)

	summary := costs.Summary()
	assert.Equal(t, 1, summary.LLMCalls)
	assert.Equal(t, 150, summary.TotalTokens)
	assert.Greater(t, summary.TotalCostUSD, 0.0)
}

func TestPlannerNonRetryableErrorFailsFast(t *testing.T) {
	provider := &fakeProvider{responses: []interface{}{
		fmt.Errorf("invalid api key"),
		`{"steps": [{"id": "s1", "capability": "echo", "args": {"value": "a"}}]}`,
	}}

	_, err := newTestPlanner(provider).Generate(context.Background(), NewTask("echo"), "")
	require.Error(t, err)
	assert.Equal(t, 1, provider.callCount())
}
