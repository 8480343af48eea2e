package testsupport

import (
	"path/filepath"
	"testing"

	"bookture/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Pacing intervals and retry delays are zeroed so tests never wait.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.UploadDir = filepath.Join(base, "uploads")
	cfgVal.Paths.ArtifactDir = filepath.Join(base, "artifacts")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.LLM.APIKey = "test"
	cfgVal.Pipeline.PromptIntervalMillis = 0
	cfgVal.Pipeline.ImageIntervalMillis = 0
	cfgVal.Pipeline.RetryBaseDelayMillis = 1
	cfgVal.Pipeline.RetryMaxDelayMillis = 1
	cfgVal.Maintenance.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithAPIKey sets the model API key on the test config.
func WithAPIKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.APIKey = key
	}
}

// WithModelEndpoint points both model clients at url (usually an httptest server).
func WithModelEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = url
		b.cfg.Imaging.BaseURL = url
	}
}

// WithTokens configures bearer token to caller mappings.
func WithTokens(tokens map[string]string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Tokens = tokens
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
