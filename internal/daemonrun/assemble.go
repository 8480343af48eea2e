package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bookture/internal/analysis"
	"bookture/internal/artifacts"
	"bookture/internal/config"
	"bookture/internal/cover"
	"bookture/internal/daemon"
	"bookture/internal/illustration"
	"bookture/internal/intake"
	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/maintenance"
	"bookture/internal/metrics"
	"bookture/internal/notifications"
	"bookture/internal/progress"
	"bookture/internal/prompting"
	"bookture/internal/ratelimit"
	"bookture/internal/retry"
	"bookture/internal/services/imagegen"
	"bookture/internal/services/llm"
	"bookture/internal/services/narrative"
	"bookture/internal/shredding"
	"bookture/internal/stage"
	"bookture/internal/textextract"
	"bookture/internal/workflow"
)

// runtime holds the long-lived components of one daemon process.
type runtime struct {
	store       *jobs.Store
	broadcaster progress.Broadcaster
	workflow    *workflow.Manager
	daemon      *daemon.Daemon
}

func (r *runtime) close() {
	if r.broadcaster != nil {
		_ = r.broadcaster.Close()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
}

// capabilities are the paced, retried call policies shared by every job.
// The image capability is one limiter for character sheets, covers, and
// pages alike.
type capabilities struct {
	compose   stage.Capability
	summarize stage.Capability
	text      stage.Capability
	image     stage.Capability
}

func newCapabilities(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) capabilities {
	pipeline := cfg.Pipeline
	newRetry := func() *retry.Caller {
		return retry.New(pipeline.RetryAttempts, pipeline.RetryBaseDelay(), pipeline.RetryMaxDelay(),
			retry.WithObserver(func(op string, attempt int, delay time.Duration, err error) {
				m.Retry(op)
				logger.Info("transient failure, retrying",
					logging.String("operation", op),
					logging.Int("attempt", attempt),
					logging.Duration("delay", delay),
					logging.Error(err),
					logging.String(logging.FieldEventType, "retry_scheduled"),
				)
			}),
		)
	}
	imageLimiter := ratelimit.New("image", pipeline.ImageInterval())
	return capabilities{
		compose:   stage.Capability{Name: "text", Limiter: ratelimit.New("text", pipeline.PromptInterval()), Retry: newRetry(), Metrics: m},
		summarize: stage.Capability{Name: "text", Retry: newRetry(), Metrics: m},
		text:      stage.Capability{Name: "text", Retry: newRetry(), Metrics: m},
		image:     stage.Capability{Name: "image", Limiter: imageLimiter, Retry: newRetry(), Metrics: m},
	}
}

// assemble builds the store, collaborators, stages, and daemon from cfg.
// The caller owns the returned runtime and must close it.
func assemble(ctx context.Context, cfg *config.Config, logger *slog.Logger) (rt *runtime, err error) {
	rt = &runtime{}
	defer func() {
		if err != nil {
			rt.close()
			rt = nil
		}
	}()

	rt.store, err = jobs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	m := metrics.New()

	local, err := artifacts.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	textClient := llm.NewClient(llm.FromConfig(cfg.TextLLM()))
	imageLLM := cfg.ImageLLM()
	imageClient := llm.NewClient(llm.FromConfig(imageLLM))
	narrator, err := narrative.NewFromClient(textClient)
	if err != nil {
		return nil, fmt.Errorf("init narrative service: %w", err)
	}
	var imageOpts []imagegen.Option
	if cfg.Imaging.TimeoutSeconds > 0 {
		imageOpts = append(imageOpts, imagegen.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Imaging.TimeoutSeconds) * time.Second}))
	}
	images := imagegen.New(imageClient, imageLLM.Model, cfg.Imaging.AspectRatio, imageOpts...)
	caps := newCapabilities(cfg, m, logger)

	rt.broadcaster, err = progress.NewBroadcaster(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init progress broadcaster: %w", err)
	}

	rt.workflow = workflow.NewManager(workflow.Options{
		Store:    rt.store,
		Sink:     progress.NewSink(rt.store, rt.broadcaster, m, logger),
		Notifier: notifications.NewService(cfg),
		Metrics:  m,
		JobLogs:  workflow.NewJobLogs(cfg),
		Logger:   logger,
	})
	rt.workflow.ConfigureStages(workflow.StageSet{
		Shredder: shredding.New(rt.store, textextract.New(cfg.Pipeline.WordsPerUnit), logger),
		Analyzer: analysis.New(analysis.Options{
			Store:        rt.store,
			Analyzer:     narrator,
			Images:       images,
			Artifacts:    local,
			Text:         caps.text,
			Image:        caps.image,
			LeadingUnits: cfg.Pipeline.LeadingUnits,
			Logger:       logger,
		}),
		Cover: cover.New(cover.Options{
			Store:        rt.store,
			Images:       images,
			Artifacts:    local,
			Image:        caps.image,
			LeadingUnits: cfg.Pipeline.LeadingUnits,
			Placeholder:  cfg.Pipeline.PlaceholderCover,
			Logger:       logger,
		}),
		Prompter: prompting.New(prompting.Options{
			Store:           rt.store,
			Writer:          narrator,
			Compose:         caps.compose,
			Summarize:       caps.summarize,
			UnitCap:         cfg.Pipeline.UnitCap,
			MinPromptLength: cfg.Pipeline.MinPromptLength,
			Logger:          logger,
		}),
		Illustrator: illustration.New(illustration.Options{
			Store:     rt.store,
			Images:    images,
			Artifacts: local,
			Image:     caps.image,
			UnitCap:   cfg.Pipeline.UnitCap,
			Logger:    logger,
		}),
	})

	guard := intake.New(intake.Options{
		Store:       rt.store,
		Launcher:    rt.workflow,
		Placeholder: cfg.Pipeline.PlaceholderCover,
		Metrics:     m,
		Logger:      logger,
	})

	var scheduler *maintenance.Scheduler
	if cfg.Maintenance.Enabled {
		scheduler, err = maintenance.New(maintenance.Options{Config: cfg, Store: rt.store, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("init maintenance: %w", err)
		}
	}

	rt.daemon, err = daemon.New(daemon.Options{
		Config:      cfg,
		Store:       rt.store,
		Workflow:    rt.workflow,
		Guard:       guard,
		Broadcaster: rt.broadcaster,
		Artifacts:   local,
		Maintenance: scheduler,
		Metrics:     m,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return rt, nil
}
