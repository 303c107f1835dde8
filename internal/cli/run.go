package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fadhil/opsagent/internal/config"
	"github.com/fadhil/opsagent/internal/logger"
	"github.com/fadhil/opsagent/internal/metrics"
	"github.com/fadhil/opsagent/pkg/cache"
	"github.com/fadhil/opsagent/pkg/llm"
	"github.com/fadhil/opsagent/pkg/orchestrator"
	"github.com/fadhil/opsagent/pkg/tool"
)

var (
	runDeadline    time.Duration
	runJSON        bool
	runMetricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run a task end to end",
	Long: `Run plans the given task, executes the plan against the registered
tools, verifies the results, and prints the answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().DurationVar(&runDeadline, "deadline", 0, "overall deadline for the run (0 means none)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full answer as JSON")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (e.g. :9090, empty disables)")
	rootCmd.AddCommand(runCmd)
}

func runTask(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no API key configured for provider %s", cfg.LLM.Provider)
	}

	appLogger, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	zl := appLogger.Zerolog()

	provider, err := llm.NewProvider(cfg.LLM.Provider, cfg.LLM.APIKey)
	if err != nil {
		return err
	}

	registry := tool.NewRegistry()
	if err := registerBuiltins(registry, cfg); err != nil {
		return err
	}

	responseCache := cache.New()
	if cfg.Cache.JanitorSchedule != "" {
		janitor, err := cache.NewJanitor(responseCache, cfg.Cache.JanitorSchedule, zl)
		if err != nil {
			return fmt.Errorf("invalid janitor schedule: %w", err)
		}
		janitor.Start()
		defer janitor.Stop()
	}

	m := metrics.New()
	if runMetricsAddr != "" {
		server := &http.Server{Addr: runMetricsAddr, Handler: metricsMux(m)}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zl.Error().Err(err).Str("addr", runMetricsAddr).Msg("Metrics server failed")
			}
		}()
		defer server.Close()
	}

	engine, err := orchestrator.New(orchestrator.Config{
		Provider:      provider,
		Registry:      registry,
		Cache:         responseCache,
		Metrics:       m,
		Logger:        zl,
		Model:         cfg.LLM.Model,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		MaxWorkers:    cfg.Engine.MaxWorkers,
		StepRetries:   cfg.Engine.StepRetries,
		PlanRetries:   cfg.Engine.PlanRetries,
		VerifyRetries: cfg.Engine.VerifyRetries,
		CacheTTL:      cfg.Cache.TTL(),
		StepTimeout:   cfg.Engine.StepTimeout(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if runDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDeadline)
		defer cancel()
	}

	answer, err := engine.Run(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	if runJSON {
		encoded, err := json.MarshalIndent(answer, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(encoded))
		return nil
	}

	printAnswer(cmd, answer)
	return nil
}

func printAnswer(cmd *cobra.Command, answer *orchestrator.Answer) {
	cmd.Println(answer.Summary)
	cmd.Println()
	for _, step := range answer.Steps {
		line := fmt.Sprintf("  [%s] %s (%s)", step.Status, step.StepID, step.Capability)
		if step.FromCache {
			line += " cached"
		}
		if step.Error != "" {
			line += " - " + step.Error
		}
		cmd.Println(line)
	}
	cmd.Println()
	verified := "no"
	if answer.Verified {
		verified = "yes"
	}
	cmd.Printf("verified: %s  tokens: %d  cost: $%.6f  latency: %s\n",
		verified, answer.TotalTokens, answer.TotalCostUSD, answer.Latency.Round(time.Millisecond))
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// registerBuiltins wires the built-in tools, skipping those missing
// their credentials.
func registerBuiltins(registry *tool.Registry, cfg *config.Config) error {
	if err := registry.Register(tool.NewWeather(tool.WeatherConfig{})); err != nil {
		return err
	}
	if cfg.Tools.GitHubToken != "" {
		if err := registry.Register(tool.NewGitHubSearch(tool.GitHubConfig{Token: cfg.Tools.GitHubToken})); err != nil {
			return err
		}
	}
	if cfg.Tools.NewsAPIKey != "" {
		if err := registry.Register(tool.NewNewsSearch(tool.NewsConfig{APIKey: cfg.Tools.NewsAPIKey})); err != nil {
			return err
		}
	}
	return nil
}
