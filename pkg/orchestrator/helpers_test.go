package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fadhil/opsagent/internal/metrics"
	"github.com/fadhil/opsagent/pkg/llm"
	"github.com/fadhil/opsagent/pkg/tool"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func newCostTracker() *metrics.CostTracker {
	return metrics.NewCostTracker(nil)
}

// fakeProvider replays scripted responses in order. An entry that is
// an error value is returned as a failure.
type fakeProvider struct {
	mu        sync.Mutex
	responses []interface{}
	requests  []llm.Request
}

func (f *fakeProvider) GenerateText(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return nil, fmt.Errorf("no scripted response left")
	}
	next := f.responses[0]
	f.responses = f.responses[1:]

	switch v := next.(type) {
	case error:
		return nil, v
	case string:
		return &llm.Response{
			Text:  v,
			Usage: llm.Usage{InputTokens: 100, OutputTokens: 50},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported scripted response %T", next)
	}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// newTestRegistry registers an "echo" tool that returns its input and a
// "fail" tool that always errors.
func newTestRegistry() *tool.Registry {
	registry := tool.NewRegistry()

	_ = registry.Register(tool.Definition{
		Name:        "echo",
		Description: "Returns its input",
		Parameters: []tool.Parameter{
			{Name: "value", Type: "string", Description: "Value to echo", Required: true},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"value": args["value"]}, nil
		},
	})

	_ = registry.Register(tool.Definition{
		Name:        "fail",
		Description: "Always fails",
		Parameters: []tool.Parameter{
			{Name: "value", Type: "string", Description: "Ignored", Required: true},
		},
		Handler: func(_ context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
			return nil, fmt.Errorf("boom")
		},
	})

	return registry
}
