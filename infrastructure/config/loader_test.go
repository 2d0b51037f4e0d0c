package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadFileYAML(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test-abcdef")
	path := writeConfig(t, "runtime.yaml", `
logging:
  level: debug
  format: json
model:
  provider: openai
  model: gpt-4o
  api_key: ${TEST_OPENAI_KEY}
budget:
  steps: 5
  tokens: 2000
`)

	cfg, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Model.APIKey != "sk-test-abcdef" {
		t.Errorf("api_key = %q, env expansion failed", cfg.Model.APIKey)
	}
	if cfg.Budget.Steps != 5 || cfg.Budget.Tokens != 2000 {
		t.Errorf("budget = %+v", cfg.Budget)
	}
}

func TestLoadFileJSON(t *testing.T) {
	path := writeConfig(t, "runtime.json", `{
		"bus": {"backend": "nats", "subject_prefix": "fleet"},
		"memory": {"backend": "redis", "redis": {"address": "localhost:6379"}}
	}`)

	cfg, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bus.Backend != "nats" || cfg.Bus.SubjectPrefix != "fleet" {
		t.Errorf("bus = %+v", cfg.Bus)
	}
	if cfg.Memory.Redis.Address != "localhost:6379" {
		t.Errorf("redis = %+v", cfg.Memory.Redis)
	}
}

func TestLoadKeepsDefaultsForAbsentFields(t *testing.T) {
	path := writeConfig(t, "partial.yaml", `
logging:
  level: warn
`)
	cfg, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.Retry.MaxAttempts != def.Retry.MaxAttempts {
		t.Errorf("retry.max_attempts = %d, want default %d", cfg.Retry.MaxAttempts, def.Retry.MaxAttempts)
	}
	if cfg.Budget.Wall != def.Budget.Wall {
		t.Errorf("budget.wall = %s, want default %s", cfg.Budget.Wall, def.Budget.Wall)
	}
	if cfg.Model.Provider != "echo" {
		t.Errorf("model.provider = %q, want default echo", cfg.Model.Provider)
	}
}

func TestLoadFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("err = %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeConfig(t, "runtime.toml", `level = "info"`)
		if _, err := NewLoader().LoadFile(path); !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "broken.yaml", "logging: [unclosed")
		if _, err := NewLoader().LoadFile(path); !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("err = %v, want ErrInvalidFormat", err)
		}
	})

	t.Run("directory path", func(t *testing.T) {
		if _, err := NewLoader().LoadFile(t.TempDir()); !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("err = %v, want ErrInvalidFormat", err)
		}
	})
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"non-positive steps":    "budget: {steps: -1}",
		"unknown provider":      "model: {provider: gemini}",
		"provider without key":  "model: {provider: openai, model: gpt-4o}",
		"redis without address": "memory: {backend: redis}",
		"unknown bus backend":   "bus: {backend: kafka}",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, "bad.yaml", content)
			_, err := NewLoader().LoadFile(path)
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("err = %v, want ErrValidationFailed", err)
			}
		})
	}

	t.Run("validation can be disabled", func(t *testing.T) {
		loader := &Loader{ExpandEnv: true, Validate: false}
		path := writeConfig(t, "bad.yaml", "budget: {steps: -1}")
		cfg, err := loader.LoadFile(path)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.Budget.Steps != -1 {
			t.Errorf("steps = %d, want -1", cfg.Budget.Steps)
		}
	})
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if Default().Budget.Wall != 10*time.Minute {
		t.Errorf("default wall = %s", Default().Budget.Wall)
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	if _, err := NewLoader().Load(strings.NewReader("{}"), Format("ini")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}
