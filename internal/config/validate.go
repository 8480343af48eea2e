package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable. Credentials are checked
// separately by ValidateCredentials so read-only commands work without them.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateBroadcast(); err != nil {
		return err
	}
	if err := c.validateMaintenance(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// ValidateCredentials reports whether the model clients have API keys.
func (c *Config) ValidateCredentials() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/bookture/config.toml"
		}
		return fmt.Errorf("llm.api_key is required. Set %s env var or edit %s (create with 'bookture config init')", EnvLLMAPIKey, defaultPath)
	}
	if c.ImageLLM().APIKey == "" {
		return fmt.Errorf("imaging.api_key is required. Set %s or llm.api_key", EnvImagingAPIKey)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.WordsPerUnit <= 0 {
		return errors.New("pipeline.words_per_unit must be positive")
	}
	if p.LeadingUnits <= 0 {
		return errors.New("pipeline.leading_units must be positive")
	}
	if p.UnitCap <= 0 {
		return errors.New("pipeline.unit_cap must be positive")
	}
	if p.MinPromptLength < 0 {
		return errors.New("pipeline.min_prompt_length must be non-negative")
	}
	if p.PromptIntervalMillis < 0 || p.ImageIntervalMillis < 0 {
		return errors.New("pipeline intervals must be non-negative")
	}
	if p.RetryAttempts <= 0 {
		return errors.New("pipeline.retry_attempts must be positive")
	}
	if p.RetryMaxDelayMillis < p.RetryBaseDelayMillis {
		return errors.New("pipeline.retry_max_delay_ms must be >= pipeline.retry_base_delay_ms")
	}
	return nil
}

func (c *Config) validateBroadcast() error {
	switch c.Broadcast.Backend {
	case "memory":
	case "redis":
		if c.Broadcast.RedisAddr == "" {
			return errors.New("broadcast.redis_addr must be set when broadcast.backend is redis")
		}
	case "nats":
		if c.Broadcast.NATSURL == "" {
			return errors.New("broadcast.nats_url must be set when broadcast.backend is nats")
		}
		if c.Broadcast.NATSSubjectPrefix == "" {
			return errors.New("broadcast.nats_subject_prefix must be set when broadcast.backend is nats")
		}
	default:
		return fmt.Errorf("broadcast.backend %q is not supported (memory, redis, nats)", c.Broadcast.Backend)
	}
	return nil
}

// ScheduleParser parses maintenance schedules: five-field cron expressions
// or descriptors such as @daily and @every 6h.
var ScheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func (c *Config) validateMaintenance() error {
	if !c.Maintenance.Enabled {
		return nil
	}
	if _, err := ScheduleParser.Parse(c.Maintenance.LogCleanupSchedule); err != nil {
		return fmt.Errorf("maintenance.log_cleanup_schedule: %w", err)
	}
	if _, err := ScheduleParser.Parse(c.Maintenance.UploadCleanupSchedule); err != nil {
		return fmt.Errorf("maintenance.upload_cleanup_schedule: %w", err)
	}
	if c.Maintenance.UploadRetentionHours <= 0 {
		return errors.New("maintenance.upload_retention_hours must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (console, json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be non-negative")
	}
	return nil
}
