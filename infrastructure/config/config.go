// Package config loads runtime configuration from YAML or JSON files.
package config

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConfigNotFound    = errors.New("config file not found")
	ErrInvalidFormat     = errors.New("invalid config format")
	ErrUnsupportedFormat = errors.New("unsupported config format")
	ErrValidationFailed  = errors.New("config validation failed")
)

// RuntimeConfig is the top-level configuration for the agent runtime.
type RuntimeConfig struct {
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Tracing  TracingConfig  `yaml:"tracing" json:"tracing"`
	Model    ModelConfig    `yaml:"model" json:"model"`
	Memory   MemoryConfig   `yaml:"memory" json:"memory"`
	Bus      BusConfig      `yaml:"bus" json:"bus"`
	Budget   BudgetConfig   `yaml:"budget" json:"budget"`
	Retry    RetryConfig    `yaml:"retry" json:"retry"`
	Safety   SafetyConfig   `yaml:"safety" json:"safety"`
}

// LoggingConfig controls the structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled  bool    `yaml:"enabled" json:"enabled"`
	Exporter string  `yaml:"exporter" json:"exporter"`
	Sample   float64 `yaml:"sample" json:"sample"`
}

// ModelConfig selects and configures the model provider.
type ModelConfig struct {
	// Provider is one of: openai, anthropic, echo.
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	APIKey   string `yaml:"api_key" json:"api_key"`
	BaseURL  string `yaml:"base_url" json:"base_url"`
}

// MemoryConfig selects the memory backend.
type MemoryConfig struct {
	// Backend is one of: inmemory, redis.
	Backend string `yaml:"backend" json:"backend"`
	Redis   struct {
		Address   string `yaml:"address" json:"address"`
		Password  string `yaml:"password" json:"password"`
		DB        int    `yaml:"db" json:"db"`
		KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
	} `yaml:"redis" json:"redis"`
}

// BusConfig selects the message bus backend.
type BusConfig struct {
	// Backend is one of: inmemory, nats.
	Backend       string `yaml:"backend" json:"backend"`
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix"`
}

// BudgetConfig sets the default session budget.
type BudgetConfig struct {
	Steps  int           `yaml:"steps" json:"steps"`
	Tokens int           `yaml:"tokens" json:"tokens"`
	Wall   time.Duration `yaml:"wall" json:"wall"`
}

// RetryConfig controls external-call retries.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	CallTimeout  time.Duration `yaml:"call_timeout" json:"call_timeout"`
}

// SafetyConfig controls the interceptor chain.
type SafetyConfig struct {
	CheckTimeout   time.Duration `yaml:"check_timeout" json:"check_timeout"`
	GlobalRate     int           `yaml:"global_rate" json:"global_rate"`
	GlobalBurst    int           `yaml:"global_burst" json:"global_burst"`
	BlockedPhrases []string      `yaml:"blocked_phrases" json:"blocked_phrases"`
}

// Default returns a configuration suitable for local development.
func Default() *RuntimeConfig {
	return &RuntimeConfig{
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Tracing: TracingConfig{Enabled: false, Exporter: "noop", Sample: 1.0},
		Model:   ModelConfig{Provider: "echo"},
		Memory:  MemoryConfig{Backend: "inmemory"},
		Bus:     BusConfig{Backend: "inmemory", SubjectPrefix: "agents"},
		Budget:  BudgetConfig{Steps: 20, Tokens: 100_000, Wall: 10 * time.Minute},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			CallTimeout:  30 * time.Second,
		},
		Safety: SafetyConfig{CheckTimeout: time.Second},
	}
}

// Validate checks the configuration for unusable values.
func (c *RuntimeConfig) Validate() error {
	var errs []error

	switch c.Model.Provider {
	case "openai", "anthropic":
		if c.Model.APIKey == "" {
			errs = append(errs, fmt.Errorf("model: provider %q requires an api_key", c.Model.Provider))
		}
	case "echo", "":
	default:
		errs = append(errs, fmt.Errorf("model: unknown provider %q", c.Model.Provider))
	}

	switch c.Memory.Backend {
	case "inmemory", "":
	case "redis":
		if c.Memory.Redis.Address == "" {
			errs = append(errs, errors.New("memory: redis backend requires an address"))
		}
	default:
		errs = append(errs, fmt.Errorf("memory: unknown backend %q", c.Memory.Backend))
	}

	switch c.Bus.Backend {
	case "inmemory", "nats", "":
	default:
		errs = append(errs, fmt.Errorf("bus: unknown backend %q", c.Bus.Backend))
	}

	if c.Budget.Steps <= 0 {
		errs = append(errs, errors.New("budget: steps must be positive"))
	}
	if c.Budget.Tokens <= 0 {
		errs = append(errs, errors.New("budget: tokens must be positive"))
	}
	if c.Budget.Wall < 0 {
		errs = append(errs, errors.New("budget: wall must not be negative"))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry: max_attempts must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidationFailed, errors.Join(errs...))
	}
	return nil
}
