package config

const (
	defaultDataDir               = "~/.local/share/bookture"
	defaultUploadDir             = "~/.local/share/bookture/uploads"
	defaultArtifactDir           = "~/.local/share/bookture/artifacts"
	defaultLogDir                = "~/.local/share/bookture/logs"
	defaultAPIBind               = "127.0.0.1:7390"
	defaultMaxUploadMB           = 50
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "google/gemma-3-27b-it"
	defaultLLMReferer            = "https://github.com/bookture/bookture"
	defaultLLMTitle              = "Bookture"
	defaultLLMTimeoutSeconds     = 60
	defaultImagingModel          = "google/gemini-2.5-flash-image"
	defaultImagingAspectRatio    = "3:4"
	defaultImagingTimeoutSeconds = 120
	defaultWordsPerUnit          = 450
	defaultLeadingUnits          = 10
	defaultUnitCap               = 10
	defaultMinPromptLength       = 20
	defaultPromptIntervalMillis  = 2000
	defaultImageIntervalMillis   = 7000
	defaultRetryAttempts         = 5
	defaultRetryBaseDelayMillis  = 1000
	defaultRetryMaxDelayMillis   = 30000
	defaultPlaceholderCover      = "https://images.unsplash.com/photo-1532012197267-da84d127e765?q=80&w=800"
	defaultBroadcastBackend      = "memory"
	defaultBroadcastBuffer       = 64
	defaultRedisAddr             = "127.0.0.1:6379"
	defaultRedisPrefix           = "bookture:"
	defaultNATSURL               = "nats://127.0.0.1:4222"
	defaultNATSSubjectPrefix     = "bookture"
	defaultNotifyRequestTimeout  = 10
	defaultLogCleanupSchedule    = "@daily"
	defaultUploadCleanupSchedule = "@every 6h"
	defaultUploadRetentionHours  = 72
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultCallerID              = "local"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			UploadDir:   defaultUploadDir,
			ArtifactDir: defaultArtifactDir,
			LogDir:      defaultLogDir,
		},
		API: API{
			Bind:          defaultAPIBind,
			MaxUploadMB:   defaultMaxUploadMB,
			DefaultCaller: defaultCallerID,
			Metrics:       true,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Imaging: Imaging{
			Model:          defaultImagingModel,
			AspectRatio:    defaultImagingAspectRatio,
			TimeoutSeconds: defaultImagingTimeoutSeconds,
		},
		Pipeline: Pipeline{
			WordsPerUnit:         defaultWordsPerUnit,
			LeadingUnits:         defaultLeadingUnits,
			UnitCap:              defaultUnitCap,
			MinPromptLength:      defaultMinPromptLength,
			PromptIntervalMillis: defaultPromptIntervalMillis,
			ImageIntervalMillis:  defaultImageIntervalMillis,
			RetryAttempts:        defaultRetryAttempts,
			RetryBaseDelayMillis: defaultRetryBaseDelayMillis,
			RetryMaxDelayMillis:  defaultRetryMaxDelayMillis,
			PlaceholderCover:     defaultPlaceholderCover,
		},
		Broadcast: Broadcast{
			Backend:           defaultBroadcastBackend,
			Buffer:            defaultBroadcastBuffer,
			RedisAddr:         defaultRedisAddr,
			RedisPrefix:       defaultRedisPrefix,
			NATSURL:           defaultNATSURL,
			NATSSubjectPrefix: defaultNATSSubjectPrefix,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Errors:         true,
		},
		Maintenance: Maintenance{
			Enabled:               true,
			LogCleanupSchedule:    defaultLogCleanupSchedule,
			UploadCleanupSchedule: defaultUploadCleanupSchedule,
			UploadRetentionHours:  defaultUploadRetentionHours,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
