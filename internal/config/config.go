// Package config handles reading and writing .gantry/config.yaml plus the
// environment overrides layered on top of it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const configDir = ".gantry"
const configFile = "config.yaml"

// Config is the top-level structure for .gantry/config.yaml.
type Config struct {
	Version      int             `yaml:"version"`
	Project      ProjectConfig   `yaml:"project"`
	Models       ModelsConfig    `yaml:"models"`
	Execution    ExecutionConfig `yaml:"execution"`
	Breaker      BreakerConfig   `yaml:"circuit_breaker"`
	Workers      WorkersConfig   `yaml:"workers"`
	TestPipeline []string        `yaml:"test_pipeline"`
	Tickets      TicketsConfig   `yaml:"tickets"`
}

// ProjectConfig holds project metadata detected or supplied during init.
type ProjectConfig struct {
	Name     string `yaml:"name"`
	Language string `yaml:"language"`
}

// ModelsConfig names the CLI binary and the ordered model candidates per
// role. The first entry of each list is the primary, the rest are
// fallbacks tried in order.
type ModelsConfig struct {
	CLI      string   `yaml:"cli"`
	Analyzer []string `yaml:"analyzer"`
	Planner  []string `yaml:"planner"`
	Coder    []string `yaml:"coder"`
	Reviewer []string `yaml:"reviewer"`
}

// ExecutionConfig controls session execution behaviour.
type ExecutionConfig struct {
	MaxRetries          int     `yaml:"max_retries"`
	SessionBudgetMin    int     `yaml:"session_budget_minutes"`
	InvokeTimeoutSec    int     `yaml:"invoke_timeout"` // seconds
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	Degradation         bool    `yaml:"degradation"`
	BranchPrefix        string  `yaml:"branch_prefix"`
}

// BreakerConfig tunes the per-model circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	MonitoringSec    int `yaml:"monitoring_period"` // seconds
	ResetSec         int `yaml:"reset_timeout"`     // seconds
}

// WorkersConfig controls milestone fan-out.
type WorkersConfig struct {
	Count          int     `yaml:"count"`
	MinSuccessRate float64 `yaml:"min_success_rate"`
}

// TicketsConfig selects where blocked and failed sessions are reported.
// Provider is "github" or "logbook".
type TicketsConfig struct {
	Provider string   `yaml:"provider"`
	Repo     string   `yaml:"repo"` // owner/name, github provider only
	Labels   []string `yaml:"labels"`
}

// ReadConfig reads .gantry/config.yaml from the given project directory.
// Keys absent from the file keep their defaults. dir is the project root,
// not .gantry/ itself.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, configDir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// WriteConfig writes cfg to .gantry/config.yaml in the given project
// directory, creating .gantry/ if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	dirPath := filepath.Join(dir, configDir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dirPath, configFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Models: ModelsConfig{
			CLI:      "claude",
			Analyzer: []string{"opus"},
			Planner:  []string{"opus", "sonnet"},
			Coder:    []string{"sonnet", "haiku"},
			Reviewer: []string{"opus", "sonnet"},
		},
		Execution: ExecutionConfig{
			MaxRetries:          3,
			SessionBudgetMin:    60,
			InvokeTimeoutSec:    600,
			ConfidenceThreshold: 0.7,
			Degradation:         true,
			BranchPrefix:        "gantry/",
		},
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			MonitoringSec:    300,
			ResetSec:         60,
		},
		Workers: WorkersConfig{
			Count:          3,
			MinSuccessRate: 0.5,
		},
		Tickets: TicketsConfig{
			Provider: "logbook",
			Labels:   []string{"gantry"},
		},
	}
}

// Validate clamps the confidence threshold into its supported range and
// rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Execution.ConfidenceThreshold < 0.5 {
		c.Execution.ConfidenceThreshold = 0.5
	}
	if c.Execution.ConfidenceThreshold > 0.8 {
		c.Execution.ConfidenceThreshold = 0.8
	}
	if c.Execution.MaxRetries < 1 {
		return fmt.Errorf("execution.max_retries must be at least 1, got %d", c.Execution.MaxRetries)
	}
	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be at least 1, got %d", c.Workers.Count)
	}
	if c.Workers.MinSuccessRate <= 0 || c.Workers.MinSuccessRate > 1 {
		return fmt.Errorf("workers.min_success_rate must be in (0, 1], got %g", c.Workers.MinSuccessRate)
	}
	if len(c.Models.Coder) == 0 {
		return fmt.Errorf("models.coder must list at least one model")
	}
	switch c.Tickets.Provider {
	case "github", "logbook":
	default:
		return fmt.Errorf("tickets.provider must be github or logbook, got %q", c.Tickets.Provider)
	}
	return nil
}

// Budget returns the session wall-clock budget.
func (c *Config) Budget() time.Duration {
	return time.Duration(c.Execution.SessionBudgetMin) * time.Minute
}

// InvokeTimeout returns the per-invocation model timeout.
func (c *Config) InvokeTimeout() time.Duration {
	return time.Duration(c.Execution.InvokeTimeoutSec) * time.Second
}

// GantryDir returns the .gantry directory under the project root.
func GantryDir(root string) string {
	return filepath.Join(root, configDir)
}

// SessionsDir returns the directory holding per-session checkpoint and
// journal directories.
func SessionsDir(root string) string {
	return filepath.Join(root, configDir, "sessions")
}

// SessionDir returns the directory for one session.
func SessionDir(root, sessionID string) string {
	return filepath.Join(SessionsDir(root), sessionID)
}

// DBPath returns the session index database path.
func DBPath(root string) string {
	return filepath.Join(root, configDir, "gantry.db")
}
