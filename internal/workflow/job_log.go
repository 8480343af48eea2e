package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"bookture/internal/config"
	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/textutil"
)

// JobLogDir is the subdirectory of paths.log_dir holding per-job logs.
const JobLogDir = "jobs"

// JobLogs manages a dedicated log file per job, appended to across runs.
type JobLogs struct {
	baseDir string
	level   string
}

// NewJobLogs creates the per-job log manager. An empty log_dir disables it.
func NewJobLogs(cfg *config.Config) *JobLogs {
	dir := ""
	level := "info"
	if cfg != nil {
		if strings.TrimSpace(cfg.Paths.LogDir) != "" {
			dir = filepath.Join(cfg.Paths.LogDir, JobLogDir)
		}
		if strings.TrimSpace(cfg.Logging.Level) != "" {
			level = cfg.Logging.Level
		}
	}
	return &JobLogs{baseDir: dir, level: level}
}

// Dir returns the per-job log directory.
func (j *JobLogs) Dir() string {
	if j == nil {
		return ""
	}
	return j.baseDir
}

// Path returns the log file location for job.
func (j *JobLogs) Path(job *jobs.Job) string {
	title := textutil.SlugOr(job.Title, "untitled")
	return filepath.Join(j.baseDir, fmt.Sprintf("%s-%s.log", title, job.ID))
}

// Open returns a handler writing to the job's log file.
func (j *JobLogs) Open(job *jobs.Job) (slog.Handler, io.Closer, error) {
	if j == nil || strings.TrimSpace(j.baseDir) == "" {
		return nil, nil, fmt.Errorf("job log directory not configured")
	}
	if job == nil {
		return nil, nil, fmt.Errorf("job is nil")
	}
	if err := os.MkdirAll(j.baseDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure job log directory: %w", err)
	}
	return logging.NewFileHandler(j.Path(job), j.level)
}

// jobLogger returns a logger that writes to the daemon log and, when
// available, to the job's own log file.
func (m *Manager) jobLogger(ctx context.Context, job *jobs.Job) (*slog.Logger, func()) {
	base := m.logger
	noop := func() {}
	if m.jobLogs == nil || m.jobLogs.Dir() == "" {
		return logging.WithContext(ctx, base), noop
	}
	handler, closer, err := m.jobLogs.Open(job)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, base), "job log unavailable", "job_log_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.log_dir permissions"),
			logging.String(logging.FieldImpact, "stage logs go to the daemon log only"),
		)
		return logging.WithContext(ctx, base), noop
	}
	tee := slog.New(logging.NewTee(base.Handler(), handler.WithAttrs([]slog.Attr{
		slog.String(logging.FieldComponent, "workflow-manager"),
	})))
	return logging.WithContext(ctx, tee), func() { closer.Close() }
}
