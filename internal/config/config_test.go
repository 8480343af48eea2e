package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"bookture/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv(config.EnvLLMAPIKey, "")
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "bookture")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "bookture.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.API.Bind != "127.0.0.1:7390" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.Pipeline.PromptInterval().Seconds() != 2 {
		t.Fatalf("unexpected prompt interval: %s", cfg.Pipeline.PromptInterval())
	}
	if cfg.Pipeline.ImageInterval().Seconds() != 7 {
		t.Fatalf("unexpected image interval: %s", cfg.Pipeline.ImageInterval())
	}
	if cfg.Pipeline.RetryAttempts != 5 {
		t.Fatalf("unexpected retry attempts: %d", cfg.Pipeline.RetryAttempts)
	}
	if cfg.Broadcast.Backend != "memory" {
		t.Fatalf("unexpected broadcast backend: %q", cfg.Broadcast.Backend)
	}
	if err := cfg.ValidateCredentials(); err == nil {
		t.Fatal("expected credentials error without api key")
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv(config.EnvLLMAPIKey, "")
	t.Setenv(config.EnvImagingAPIKey, "")

	configPath := filepath.Join(tempHome, "config.toml")
	content := `
[paths]
data_dir = "~/bookture-data"

[api]
bind = "0.0.0.0:9000"

[api.tokens]
"secret" = "alice"

[llm]
api_key = "file-key"

[pipeline]
unit_cap = 4

[broadcast]
backend = "Redis"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "bookture-data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.API.Bind != "0.0.0.0:9000" {
		t.Fatalf("unexpected bind: %q", cfg.API.Bind)
	}
	if cfg.API.Tokens["secret"] != "alice" {
		t.Fatalf("expected token mapping, got %v", cfg.API.Tokens)
	}
	if cfg.Pipeline.UnitCap != 4 {
		t.Fatalf("unexpected unit cap: %d", cfg.Pipeline.UnitCap)
	}
	if cfg.Broadcast.Backend != "redis" {
		t.Fatalf("expected backend normalized to redis, got %q", cfg.Broadcast.Backend)
	}
	if err := cfg.ValidateCredentials(); err != nil {
		t.Fatalf("expected credentials valid via llm fallback, got %v", err)
	}
	if got := cfg.ImageLLM().APIKey; got != "file-key" {
		t.Fatalf("expected imaging key to fall back to llm key, got %q", got)
	}
}

func TestEnvironmentOverridesSecrets(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv(config.EnvLLMAPIKey, "env-llm")
	t.Setenv(config.EnvImagingAPIKey, "env-image")
	t.Setenv(config.EnvNtfyTopic, "https://ntfy.example/topic")

	cfg, _, _, err := config.Load(filepath.Join(tempHome, "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "env-llm" {
		t.Fatalf("unexpected llm key: %q", cfg.LLM.APIKey)
	}
	if cfg.ImageLLM().APIKey != "env-image" {
		t.Fatalf("unexpected imaging key: %q", cfg.ImageLLM().APIKey)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/topic" {
		t.Fatalf("unexpected ntfy topic: %q", cfg.Notifications.NtfyTopic)
	}
}

func TestDotenvFileSuppliesSecrets(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	// Registered so the value set by godotenv is restored after the test.
	t.Setenv(config.EnvLLMAPIKey, "")
	if err := os.Unsetenv(config.EnvLLMAPIKey); err != nil {
		t.Fatalf("unsetenv: %v", err)
	}

	envPath := filepath.Join(tempHome, ".env")
	if err := os.WriteFile(envPath, []byte(config.EnvLLMAPIKey+"=dotenv-key\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	configPath := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\nenv_file = \""+envPath+"\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "dotenv-key" {
		t.Fatalf("expected key from dotenv, got %q", cfg.LLM.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"backend", func(c *config.Config) { c.Broadcast.Backend = "kafka" }, "broadcast.backend"},
		{"unit cap", func(c *config.Config) { c.Pipeline.UnitCap = 0 }, "unit_cap"},
		{"retry", func(c *config.Config) { c.Pipeline.RetryAttempts = 0 }, "retry_attempts"},
		{"schedule", func(c *config.Config) { c.Maintenance.LogCleanupSchedule = "whenever" }, "log_cleanup_schedule"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.Pipeline.WordsPerUnit != 450 {
		t.Fatalf("unexpected sample words_per_unit: %d", cfg.Pipeline.WordsPerUnit)
	}
}

func TestArtifactBaseURL(t *testing.T) {
	cfg := config.Default()
	if got := cfg.ArtifactBaseURL(); got != "http://127.0.0.1:7390/artifacts" {
		t.Fatalf("unexpected default artifact base: %q", got)
	}
	cfg.Storage.PublicBaseURL = "https://cdn.example.com/b/"
	if got := cfg.ArtifactBaseURL(); got != "https://cdn.example.com/b" {
		t.Fatalf("unexpected public artifact base: %q", got)
	}
}
