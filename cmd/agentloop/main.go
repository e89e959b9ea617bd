// Command agentloop runs one LLM-driven workflow loop against a configured
// provider, with persisted FSM state, a JSONL transition log and Prometheus
// metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"agentloop/pkg/agent"
	"agentloop/pkg/agent/providers"
	"agentloop/pkg/config"
	"agentloop/pkg/events"
	"agentloop/pkg/fsm"
	"agentloop/pkg/logx"
	"agentloop/pkg/metrics"
	"agentloop/pkg/persist"
	"agentloop/pkg/resilience"
	"agentloop/pkg/resilience/bulkhead"
	"agentloop/pkg/resilience/circuit"
	"agentloop/pkg/resilience/ratelimit"
	"agentloop/pkg/resilience/retry"
	"agentloop/pkg/utils"
	"agentloop/pkg/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agentloop: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "agentloop.yaml", "path to the YAML configuration")
		task       = flag.String("task", "", "task for the workflow to pursue (required)")
		sessionID  = flag.String("session", "", "session ID to attribute runtime calls to")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	if *debug {
		logx.SetDebug(true)
	}
	logger := logx.NewLogger("main")

	if *task == "" {
		return errors.New("a -task is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiKey, err := resolveAPIKey(cfg.Agent)
	if err != nil {
		return err
	}

	client, err := providers.New(ctx, cfg.Agent.Provider, apiKey, cfg.Agent.Model, cfg.Agent.Host)
	if err != nil {
		return err
	}
	runtime := agent.NewLLMRuntime(client, "You drive a budgeted plan/act/synthesize/check loop. Always answer with the requested JSON object.")

	store, closeStore, err := buildStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	mediator := events.NewMediator()
	eventLog, err := events.NewLogWriter(cfg.Storage.EventLogDir)
	if err != nil {
		return err
	}
	defer func() { _ = eventLog.Close() }()
	mediator.Subscribe(eventLog.Handle)

	recorder := metrics.NewRecorder()
	if cfg.Metrics.Enabled {
		serveMetrics(recorder, cfg.Metrics.ListenAddr, logger)
	}

	// The breaker and bulkhead ride along in the reliability config; the
	// hook execution path consults only the rate limiter and retry executor.
	limiter := ratelimit.NewLimiter(cfg.Reliability.RateLimit)
	breakers := circuit.NewSet(cfg.Reliability.Circuit)
	heads := bulkhead.New(cfg.Reliability.Bulkhead)
	reliability := &resilience.Config{
		Enabled:     cfg.Reliability.Enabled,
		Resource:    cfg.Reliability.Resource,
		RateLimiter: limiter,
		Retry:       retry.NewExecutorWithBreaker(cfg.Reliability.Retry, breakers.Get(cfg.Agent.Provider)),
		Breaker:     breakers.Get(cfg.Agent.Provider),
		Bulkhead:    heads,
	}

	counter, err := utils.NewTokenCounter(cfg.Agent.Model)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	orchestrator, err := workflow.New(workflow.Config{
		RunID:     runID,
		SessionID: *sessionID,
		Task:      *task,
		Budget:    budgetFromConfig(cfg.Budget),
		Runtime:   runtime,
		Machine: workflow.MachineOptions{
			Repo:        store,
			Mediator:    mediator,
			Observers:   []fsm.Observer{recorder.Observer()},
			Reliability: reliability,
		},
		RateLimiter:     limiter,
		LimiterResource: cfg.Reliability.Resource,
		Estimator:       counter.CountTokens,
		Metrics:         recorder.ForRun(runID),
	})
	if err != nil {
		return err
	}

	logger.Info("starting run %s (%s/%s)", orchestrator.RunID(), cfg.Agent.Provider, cfg.Agent.Model)

	result, runErr := orchestrator.Run(ctx)
	printResult(result)
	if runErr != nil {
		return fmt.Errorf("run %s failed: %w", orchestrator.RunID(), runErr)
	}
	return nil
}

// resolveAPIKey reads the provider key from the environment, falling back to
// an interactive prompt when stdin is a terminal. Ollama needs no key.
func resolveAPIKey(cfg config.AgentConfig) (string, error) {
	if cfg.Provider == providers.ProviderOllama {
		return "", nil
	}
	if key := os.Getenv(cfg.APIKeyEnv); key != "" {
		return key, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%s is not set and stdin is not a terminal", cfg.APIKeyEnv)
	}

	fmt.Fprintf(os.Stderr, "Enter %s: ", cfg.APIKeyEnv)
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	if len(key) == 0 {
		return "", fmt.Errorf("no API key provided for %s", cfg.Provider)
	}
	return string(key), nil
}

func buildStore(cfg config.StorageConfig) (persist.StateRepository, func(), error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := persist.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.BackendMemory:
		return persist.NewMemStore(), func() {}, nil
	default:
		store, err := persist.NewFileStore(cfg.StateDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func budgetFromConfig(cfg config.BudgetConfig) workflow.Budget {
	return workflow.Budget{
		MaxIterations:       cfg.MaxIterations,
		MaxToolCalls:        cfg.MaxToolCalls,
		MaxWallTimeSeconds:  cfg.MaxWallTimeSeconds,
		MaxSubagentCalls:    cfg.MaxSubagentCalls,
		StagnationThreshold: cfg.StagnationThreshold,
		MaxRiskLevel:        workflow.Severity(cfg.MaxRiskLevel),
	}
}

func serveMetrics(recorder *metrics.Recorder, addr string, logger *logx.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(recorder.Registry(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped: %v", err)
		}
	}()
	logger.Info("serving metrics on %s", addr)
}

func printResult(result workflow.RunResult) {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Printf("stop_reason=%s iterations=%d final_state=%s\n",
			result.StopReason, result.IterationCount, result.FinalState)
		return
	}
	fmt.Println(string(out))
}
