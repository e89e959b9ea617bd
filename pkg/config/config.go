// Package config loads the YAML run configuration and manages the encrypted
// secrets file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"agentloop/pkg/resilience/bulkhead"
	"agentloop/pkg/resilience/circuit"
	"agentloop/pkg/resilience/ratelimit"
	"agentloop/pkg/resilience/retry"
)

// Storage backends for FSM state.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// AgentConfig selects the LLM provider for runs.
type AgentConfig struct {
	Provider  string `yaml:"provider"`    // anthropic, openai, gemini or ollama
	Model     string `yaml:"model"`       //
	Host      string `yaml:"host"`        // ollama only
	APIKeyEnv string `yaml:"api_key_env"` // env var / secret name holding the key
}

// BudgetConfig carries the hard run ceilings.
type BudgetConfig struct {
	MaxIterations       int    `yaml:"max_iterations"`
	MaxToolCalls        int    `yaml:"max_tool_calls"`
	MaxWallTimeSeconds  int    `yaml:"max_wall_time_seconds"`
	MaxSubagentCalls    int    `yaml:"max_subagent_calls"`
	StagnationThreshold int    `yaml:"stagnation_threshold"`
	MaxRiskLevel        string `yaml:"max_risk_level"`
}

// ReliabilityConfig assembles the wrapper settings. The rate limiter and
// retry settings drive the execution path; circuit and bulkhead settings
// configure their wrappers for callers that compose them directly.
type ReliabilityConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Resource  string           `yaml:"resource"`
	RateLimit ratelimit.Config `yaml:"rate_limit"`
	Retry     retry.Config     `yaml:"retry"`
	Circuit   circuit.Config   `yaml:"circuit"`
	Bulkhead  bulkhead.Config  `yaml:"bulkhead"`
}

// StorageConfig selects the state repository backend and event log location.
type StorageConfig struct {
	Backend     string `yaml:"backend"` // file, sqlite or memory
	StateDir    string `yaml:"state_dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	EventLogDir string `yaml:"event_log_dir"`
}

// MetricsConfig configures the Prometheus recorder and query service.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddr    string `yaml:"listen_addr"`
	PrometheusURL string `yaml:"prometheus_url"`
}

// Config is the full YAML configuration.
type Config struct {
	Agent       AgentConfig       `yaml:"agent"`
	Budget      BudgetConfig      `yaml:"budget"`
	Reliability ReliabilityConfig `yaml:"reliability"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// Default provides a runnable configuration for local use.
//
//nolint:gochecknoglobals // sensible default config pattern
var Default = Config{
	Agent: AgentConfig{
		Provider:  "anthropic",
		Model:     "claude-sonnet-4-20250514",
		APIKeyEnv: "ANTHROPIC_API_KEY",
	},
	Budget: BudgetConfig{
		MaxIterations:       10,
		MaxToolCalls:        30,
		MaxWallTimeSeconds:  1800,
		MaxSubagentCalls:    10,
		StagnationThreshold: 3,
		MaxRiskLevel:        "high",
	},
	Reliability: ReliabilityConfig{
		Enabled:   true,
		Resource:  "anthropic",
		RateLimit: ratelimit.DefaultConfig,
		Retry:     retry.DefaultConfig,
		Circuit:   circuit.DefaultConfig,
		Bulkhead:  bulkhead.DefaultConfig,
	},
	Storage: StorageConfig{
		Backend:     BackendFile,
		StateDir:    "state",
		EventLogDir: "logs",
	},
	Metrics: MetricsConfig{
		ListenAddr: ":9090",
	},
}

// Load reads the YAML file at path over the defaults. A missing file returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the loop cannot run with.
func (c *Config) Validate() error {
	switch c.Agent.Provider {
	case "anthropic", "openai", "gemini", "ollama":
	default:
		return fmt.Errorf("unknown agent provider %q", c.Agent.Provider)
	}

	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Storage.Backend == BackendSQLite && c.Storage.SQLitePath == "" {
		return fmt.Errorf("sqlite backend requires storage.sqlite_path")
	}

	if c.Budget.MaxIterations < 0 || c.Budget.MaxToolCalls < 0 {
		return fmt.Errorf("budget ceilings must not be negative")
	}
	return nil
}
