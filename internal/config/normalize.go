package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeLLM()
	c.normalizePipeline()
	c.normalizeBroadcast()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.Paths.UploadDir) == "" {
		c.Paths.UploadDir = defaultUploadDir
	}
	if strings.TrimSpace(c.Paths.ArtifactDir) == "" {
		c.Paths.ArtifactDir = defaultArtifactDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}

	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return fmt.Errorf("paths.upload_dir: %w", err)
	}
	if c.Paths.ArtifactDir, err = expandPath(c.Paths.ArtifactDir); err != nil {
		return fmt.Errorf("paths.artifact_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.DefaultCaller = strings.TrimSpace(c.API.DefaultCaller)
	if c.API.DefaultCaller == "" {
		c.API.DefaultCaller = defaultCallerID
	}
	if c.API.MaxUploadMB <= 0 {
		c.API.MaxUploadMB = defaultMaxUploadMB
	}
	cleaned := make(map[string]string, len(c.API.Tokens))
	for token, caller := range c.API.Tokens {
		token = strings.TrimSpace(token)
		caller = strings.TrimSpace(caller)
		if token == "" || caller == "" {
			continue
		}
		cleaned[token] = caller
	}
	c.API.Tokens = cleaned
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.Imaging.Model = strings.TrimSpace(c.Imaging.Model)
	if c.Imaging.Model == "" {
		c.Imaging.Model = defaultImagingModel
	}
	c.Imaging.AspectRatio = strings.TrimSpace(c.Imaging.AspectRatio)
	if c.Imaging.AspectRatio == "" {
		c.Imaging.AspectRatio = defaultImagingAspectRatio
	}
	if c.Imaging.TimeoutSeconds <= 0 {
		c.Imaging.TimeoutSeconds = defaultImagingTimeoutSeconds
	}
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.RetryBaseDelayMillis <= 0 {
		c.Pipeline.RetryBaseDelayMillis = defaultRetryBaseDelayMillis
	}
	if c.Pipeline.RetryMaxDelayMillis <= 0 {
		c.Pipeline.RetryMaxDelayMillis = defaultRetryMaxDelayMillis
	}
	c.Pipeline.PlaceholderCover = strings.TrimSpace(c.Pipeline.PlaceholderCover)
	if c.Pipeline.PlaceholderCover == "" {
		c.Pipeline.PlaceholderCover = defaultPlaceholderCover
	}
}

func (c *Config) normalizeBroadcast() {
	c.Broadcast.Backend = strings.ToLower(strings.TrimSpace(c.Broadcast.Backend))
	if c.Broadcast.Backend == "" {
		c.Broadcast.Backend = defaultBroadcastBackend
	}
	if c.Broadcast.Buffer <= 0 {
		c.Broadcast.Buffer = defaultBroadcastBuffer
	}
	c.Broadcast.RedisAddr = strings.TrimSpace(c.Broadcast.RedisAddr)
	c.Broadcast.NATSURL = strings.TrimSpace(c.Broadcast.NATSURL)
	c.Broadcast.NATSSubjectPrefix = strings.Trim(strings.TrimSpace(c.Broadcast.NATSSubjectPrefix), ".")
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
