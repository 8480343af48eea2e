package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"bookture/internal/artifacts"
	"bookture/internal/config"
	"bookture/internal/intake"
	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/maintenance"
	"bookture/internal/metrics"
	"bookture/internal/progress"
	"bookture/internal/workflow"
)

// Options wires a Daemon. Maintenance and Metrics are optional.
type Options struct {
	Config      *config.Config
	Store       *jobs.Store
	Workflow    *workflow.Manager
	Guard       *intake.Guard
	Broadcaster progress.Broadcaster
	Artifacts   *artifacts.Local
	Maintenance *maintenance.Scheduler
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Daemon owns the process lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *jobs.Store
	workflow    *workflow.Manager
	guard       *intake.Guard
	broadcaster progress.Broadcaster
	artifacts   *artifacts.Local
	maintenance *maintenance.Scheduler
	metrics     *metrics.Metrics
	logPath     string

	lockPath string
	lock     *flock.Flock
	server   *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Bind         string
	LockFilePath string
	LogPath      string
	Broadcast    string
	Database     jobs.DatabaseHealth
	Workflow     workflow.StatusSummary
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Store == nil || opts.Workflow == nil || opts.Guard == nil || opts.Broadcaster == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, intake guard, and broadcaster")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := opts.Config.LockPath()
	d := &Daemon{
		cfg:         opts.Config,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		store:       opts.Store,
		workflow:    opts.Workflow,
		guard:       opts.Guard,
		broadcaster: opts.Broadcaster,
		artifacts:   opts.Artifacts,
		maintenance: opts.Maintenance,
		metrics:     opts.Metrics,
		logPath:     filepath.Join(opts.Config.Paths.LogDir, logging.LogFileName),
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}
	d.server = newAPIServer(d, logger)
	return d, nil
}

// Handler exposes the HTTP router, mainly for tests.
func (d *Daemon) Handler() http.Handler {
	return d.server.router
}

// Start acquires the daemon lock, reclaims interrupted jobs, and starts the
// workflow manager, the maintenance scheduler, and the HTTP listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another bookture daemon instance is already running")
	}

	reclaimed, err := d.store.ReclaimInterrupted(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reclaim interrupted jobs: %w", err)
	}
	if reclaimed > 0 {
		logging.WarnWithContext(d.logger, "jobs interrupted by a previous daemon marked as failed", "jobs_reclaimed",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldErrorHint, "resubmit or resume the affected jobs"),
			logging.String(logging.FieldImpact, "pipelines resume from their last persisted progress"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.server.start(runCtx, d.cfg.API.Bind); err != nil {
		cancel()
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}
	if d.maintenance != nil {
		d.maintenance.Start()
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("bookture daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.server.address()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop shuts down the listener, interrupts running pipelines, and releases
// the daemon lock.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.Load() {
		return
	}
	d.server.stop(ctx)
	if d.maintenance != nil {
		d.maintenance.Stop(ctx)
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("bookture daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Address returns the bound listener address once started.
func (d *Daemon) Address() string {
	return d.server.address()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	health, err := d.store.CheckHealth(ctx)
	if err != nil && health.Error == "" {
		health.Error = err.Error()
	}
	bind := d.server.address()
	if bind == "" {
		bind = strings.TrimSpace(d.cfg.API.Bind)
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Bind:         bind,
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Broadcast:    d.cfg.Broadcast.Backend,
		Database:     health,
		Workflow:     d.workflow.Status(ctx),
	}
}
