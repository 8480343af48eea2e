package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values when set.
const (
	EnvLLMAPIKey     = "BOOKTURE_LLM_API_KEY"
	EnvImagingAPIKey = "BOOKTURE_IMAGING_API_KEY"
	EnvRedisPassword = "BOOKTURE_REDIS_PASSWORD"
	EnvNtfyTopic     = "BOOKTURE_NTFY_TOPIC"
)

// applyEnvironment loads the optional dotenv file and applies secret
// overrides. Variables already present in the process environment win over
// the dotenv file.
func (c *Config) applyEnvironment() error {
	if envFile := strings.TrimSpace(c.Paths.EnvFile); envFile != "" {
		expanded, err := expandPath(envFile)
		if err != nil {
			return fmt.Errorf("paths.env_file: %w", err)
		}
		if err := godotenv.Load(expanded); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %q: %w", expanded, err)
		}
		c.Paths.EnvFile = expanded
	}

	overrideFromEnv(&c.LLM.APIKey, EnvLLMAPIKey)
	overrideFromEnv(&c.Imaging.APIKey, EnvImagingAPIKey)
	overrideFromEnv(&c.Broadcast.RedisPassword, EnvRedisPassword)
	overrideFromEnv(&c.Notifications.NtfyTopic, EnvNtfyTopic)
	return nil
}

func overrideFromEnv(target *string, key string) {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}
