// Package maintenance runs cron-scheduled housekeeping inside the daemon:
// log retention and pruning of uploads no unfinished job still needs.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"bookture/internal/config"
	"bookture/internal/logging"
	"bookture/internal/workflow"
)

// SourceStore reports which uploads unfinished jobs still reference.
type SourceStore interface {
	OpenSourcePaths(ctx context.Context) (map[string]struct{}, error)
}

// Options wires a Scheduler.
type Options struct {
	Config *config.Config
	Store  SourceStore
	Logger *slog.Logger
	// Now overrides the clock for upload age checks.
	Now func() time.Time
}

// Scheduler owns the cron runner and the housekeeping tasks.
type Scheduler struct {
	cfg    *config.Config
	store  SourceStore
	logger *slog.Logger
	now    func() time.Time
	cron   *cron.Cron
}

// New registers the configured housekeeping entries. Nothing runs until Start.
func New(opts Options) (*Scheduler, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("maintenance: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "maintenance")
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	cronLogger := cronLog{logger: logger}
	s := &Scheduler{
		cfg:    opts.Config,
		store:  opts.Store,
		logger: logger,
		now:    now,
		cron: cron.New(
			cron.WithParser(config.ScheduleParser),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}

	m := opts.Config.Maintenance
	if _, err := s.cron.AddFunc(m.LogCleanupSchedule, func() { s.CleanupLogs() }); err != nil {
		return nil, fmt.Errorf("schedule log cleanup: %w", err)
	}
	if _, err := s.cron.AddFunc(m.UploadCleanupSchedule, func() {
		if _, err := s.PruneUploads(context.Background()); err != nil {
			logging.WarnWithContext(s.logger, "upload pruning failed", "upload_prune_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the jobs database and upload_dir permissions"),
				logging.String(logging.FieldImpact, "stale uploads remain until the next run"),
			)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule upload pruning: %w", err)
	}
	return s, nil
}

// Start begins running scheduled entries in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, entry := range s.cron.Entries() {
		s.logger.Debug("maintenance entry scheduled", logging.String("next_run", entry.Next.Format(time.RFC3339)))
	}
}

// Stop halts the scheduler and waits for running entries or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// CleanupLogs prunes daemon and per-job logs older than logging.retention_days.
// The active daemon log is never removed.
func (s *Scheduler) CleanupLogs() int {
	return logging.CleanupOldLogs(s.logger, s.cfg.Logging.RetentionDays,
		logging.LogTargets(s.cfg.Paths.LogDir, workflow.JobLogDir)...)
}

// PruneUploads removes files in paths.upload_dir older than the retention
// window that no unfinished job references, and returns how many went.
func (s *Scheduler) PruneUploads(ctx context.Context) (int, error) {
	dir := strings.TrimSpace(s.cfg.Paths.UploadDir)
	if dir == "" || s.store == nil {
		return 0, nil
	}
	keep, err := s.store.OpenSourcePaths(ctx)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read upload dir: %w", err)
	}

	cutoff := s.now().Add(-s.cfg.Maintenance.UploadRetention())
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if _, referenced := keep[path]; referenced {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			logging.WarnWithContext(s.logger, "upload remove failed; file remains", "upload_prune_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check upload_dir permissions"),
			)
			continue
		}
		removed++
		s.logger.Info("upload pruned",
			logging.String("path", path),
			logging.String(logging.FieldEventType, "upload_pruned"),
		)
	}
	return removed, nil
}

// cronLog routes the cron runner's own messages into slog.
type cronLog struct {
	logger *slog.Logger
}

func (c cronLog) Info(msg string, keysAndValues ...any) {
	c.logger.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLog) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{logging.Error(err)}, keysAndValues...)
	c.logger.Error("cron: "+msg, args...)
}
