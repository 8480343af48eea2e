package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	UploadDir   string `toml:"upload_dir"`
	ArtifactDir string `toml:"artifact_dir"`
	LogDir      string `toml:"log_dir"`
	EnvFile     string `toml:"env_file"`
}

// API contains HTTP surface configuration. Tokens maps bearer tokens to
// caller identities; when empty every request is attributed to DefaultCaller.
type API struct {
	Bind          string            `toml:"bind"`
	Tokens        map[string]string `toml:"tokens"`
	DefaultCaller string            `toml:"default_caller"`
	MaxUploadMB   int               `toml:"max_upload_mb"`
	Metrics       bool              `toml:"metrics"`
}

// LLM contains text-understanding connection settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Imaging contains image-generation connection settings. Empty APIKey and
// BaseURL fall back to the [llm] values.
type Imaging struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	AspectRatio    string `toml:"aspect_ratio"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Storage contains artifact publication settings.
type Storage struct {
	// PublicBaseURL prefixes artifact keys to form public references. When
	// empty the daemon serves artifacts under http://<api.bind>/artifacts.
	PublicBaseURL string `toml:"public_base_url"`
}

// Pipeline contains stage pacing and sizing knobs.
type Pipeline struct {
	WordsPerUnit         int    `toml:"words_per_unit"`
	LeadingUnits         int    `toml:"leading_units"`
	UnitCap              int    `toml:"unit_cap"`
	MinPromptLength      int    `toml:"min_prompt_length"`
	PromptIntervalMillis int    `toml:"prompt_interval_ms"`
	ImageIntervalMillis  int    `toml:"image_interval_ms"`
	RetryAttempts        int    `toml:"retry_attempts"`
	RetryBaseDelayMillis int    `toml:"retry_base_delay_ms"`
	RetryMaxDelayMillis  int    `toml:"retry_max_delay_ms"`
	PlaceholderCover     string `toml:"placeholder_cover"`
}

// Broadcast selects the live progress channel backend.
type Broadcast struct {
	Backend           string `toml:"backend"`
	Buffer            int    `toml:"buffer"`
	RedisAddr         string `toml:"redis_addr"`
	RedisPassword     string `toml:"redis_password"`
	RedisDB           int    `toml:"redis_db"`
	RedisPrefix       string `toml:"redis_prefix"`
	NATSURL           string `toml:"nats_url"`
	NATSSubjectPrefix string `toml:"nats_subject_prefix"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Errors         bool   `toml:"errors"`
}

// Maintenance contains housekeeping schedules.
type Maintenance struct {
	Enabled               bool   `toml:"enabled"`
	LogCleanupSchedule    string `toml:"log_cleanup_schedule"`
	UploadCleanupSchedule string `toml:"upload_cleanup_schedule"`
	UploadRetentionHours  int    `toml:"upload_retention_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for bookture.
//
// Configuration sections by subsystem:
//   - Paths: database, upload, artifact, and log directories
//   - API: HTTP bind address, bearer tokens, upload limits
//   - LLM: text-understanding model connection
//   - Imaging: image-generation model connection
//   - Storage: artifact public URL mapping
//   - Pipeline: unit sizing, rate-limit spacing, retry budget
//   - Broadcast: live progress channel (memory, redis, nats)
//   - Notifications: ntfy push notification settings
//   - Maintenance: cron schedules for housekeeping
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	LLM           LLM           `toml:"llm"`
	Imaging       Imaging       `toml:"imaging"`
	Storage       Storage       `toml:"storage"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Broadcast     Broadcast     `toml:"broadcast"`
	Notifications Notifications `toml:"notifications"`
	Maintenance   Maintenance   `toml:"maintenance"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/bookture/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnvironment(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("bookture.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.UploadDir, c.Paths.ArtifactDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "bookture.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "bookture.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "bookture.pid")
}

// ArtifactBaseURL returns the prefix used for public artifact references.
func (c *Config) ArtifactBaseURL() string {
	if base := strings.TrimSpace(c.Storage.PublicBaseURL); base != "" {
		return strings.TrimRight(base, "/")
	}
	bind := strings.TrimSpace(c.API.Bind)
	if bind == "" {
		return ""
	}
	return "http://" + bind + "/artifacts"
}

// PromptInterval is the minimum spacing between text-generation calls.
func (p Pipeline) PromptInterval() time.Duration {
	return time.Duration(p.PromptIntervalMillis) * time.Millisecond
}

// ImageInterval is the minimum spacing between image-generation calls.
func (p Pipeline) ImageInterval() time.Duration {
	return time.Duration(p.ImageIntervalMillis) * time.Millisecond
}

// RetryBaseDelay is the first backoff delay applied to transient failures.
func (p Pipeline) RetryBaseDelay() time.Duration {
	return time.Duration(p.RetryBaseDelayMillis) * time.Millisecond
}

// RetryMaxDelay caps the exponential backoff.
func (p Pipeline) RetryMaxDelay() time.Duration {
	return time.Duration(p.RetryMaxDelayMillis) * time.Millisecond
}

// UploadRetention is how long unreferenced uploads survive pruning.
func (m Maintenance) UploadRetention() time.Duration {
	return time.Duration(m.UploadRetentionHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains connection settings shared by the model clients.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// TextLLM returns the text-understanding connection settings.
func (c *Config) TextLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}

// ImageLLM returns the image-generation connection settings.
// Falls back to [llm] settings when not explicitly configured.
func (c *Config) ImageLLM() LLMConfig {
	cfg := LLMConfig{
		APIKey:         strings.TrimSpace(c.Imaging.APIKey),
		BaseURL:        strings.TrimSpace(c.Imaging.BaseURL),
		Model:          strings.TrimSpace(c.Imaging.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.Imaging.TimeoutSeconds,
	}
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(c.LLM.APIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	}
	return cfg
}
