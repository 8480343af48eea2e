package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/metrics"
	"bookture/internal/notifications"
	"bookture/internal/progress"
)

var (
	// ErrAlreadyRunning is returned when a runner for the job is alive in this process.
	ErrAlreadyRunning = errors.New("job already running")
	// ErrStopped is returned by Launch after Stop.
	ErrStopped = errors.New("workflow stopped")
	// ErrJobFailed is returned by Run for jobs in the Error stage; they must
	// be resumed through intake first.
	ErrJobFailed = errors.New("job is in error state")
)

// Store is the read side of the jobs store the manager needs. Writes go
// through the progress sink.
type Store interface {
	GetJob(ctx context.Context, id string) (*jobs.Job, error)
	CountUnits(ctx context.Context, jobID string) (int, error)
	StageCounts(ctx context.Context) (map[jobs.Stage]int, error)
}

// Options wires a Manager.
type Options struct {
	Store    Store
	Sink     *progress.Sink
	Notifier notifications.Service
	Metrics  *metrics.Metrics
	JobLogs  *JobLogs
	Logger   *slog.Logger
}

// Manager runs jobs through the configured stages.
type Manager struct {
	store    Store
	sink     *progress.Sink
	notifier notifications.Service
	metrics  *metrics.Metrics
	jobLogs  *JobLogs
	logger   *slog.Logger

	stages []pipelineStage

	mu      sync.RWMutex
	base    context.Context
	cancel  context.CancelFunc
	stopped bool
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *jobs.Job
}

// NewManager constructs a workflow manager. Detached runners are bound to
// a background context until Start supplies the daemon's.
func NewManager(opts Options) *Manager {
	base, cancel := context.WithCancel(context.Background())
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	return &Manager{
		store:    opts.Store,
		sink:     opts.Sink,
		notifier: notifier,
		metrics:  opts.Metrics,
		jobLogs:  opts.JobLogs,
		logger:   logging.NewComponentLogger(opts.Logger, "workflow-manager"),
		base:     base,
		cancel:   cancel,
		running:  make(map[string]context.CancelFunc),
	}
}
