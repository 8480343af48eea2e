package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bookture/internal/config"
	"bookture/internal/logging"
	"bookture/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the bookture daemon and blocks until cmdCtx ends or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.LogTargets(cfg.Paths.LogDir, workflow.JobLogDir)...)

	if err := cfg.ValidateCredentials(); err != nil {
		logging.WarnWithContext(logger, "model credentials incomplete", "credentials_missing",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set llm.api_key or run bookture config init"),
			logging.String(logging.FieldImpact, "analysis and image stages will fail until configured"),
		)
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := assemble(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("assemble daemon", logging.Error(err))
		return err
	}
	defer rt.close()

	if err := rt.daemon.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check the lock file, bind address, and database access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("bookture daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	rt.daemon.Stop(shutdownCtx)
	return nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	if strings.TrimSpace(opts.LogLevel) == "" && !opts.Development {
		return logging.NewFromConfig(cfg)
	}
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, logging.LogFileName)},
		Development: opts.Development,
	})
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	text := cfg.TextLLM()
	image := cfg.ImageLLM()
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("bind", cfg.API.Bind),
		logging.Int("tokens", len(cfg.API.Tokens)),
		logging.String("text_model", text.Model),
		logging.String("image_model", image.Model),
		logging.Bool("api_key_present", text.APIKey != ""),
		logging.String("broadcast_backend", cfg.Broadcast.Backend),
		logging.Bool("maintenance", cfg.Maintenance.Enabled),
		logging.Bool("notifications", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}
