package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/metrics"
	"bookture/internal/services"
	"bookture/internal/workflow"
)

// Outcome names the guard's decision.
type Outcome string

const (
	OutcomeNew         Outcome = "new"
	OutcomeAlreadyDone Outcome = "already_done"
	OutcomeAttach      Outcome = "attach"
	OutcomeResume      Outcome = "resume"
)

// Started reports whether the decision launched a runner.
func (o Outcome) Started() bool {
	return o == OutcomeNew || o == OutcomeResume
}

// Store is the slice of the jobs store the guard needs.
type Store interface {
	LatestJobForTitle(ctx context.Context, ownerID, title string) (*jobs.Job, error)
	CreateJob(ctx context.Context, input jobs.NewJob) (*jobs.Job, error)
	GetJob(ctx context.Context, id string) (*jobs.Job, error)
	MarkResuming(ctx context.Context, id string) (*jobs.Job, error)
}

// Launcher starts detached pipeline runs.
type Launcher interface {
	Launch(jobID string) error
	Running(jobID string) bool
}

// Request describes a submission. SourcePath is empty when the caller
// resubmits without a new file.
type Request struct {
	OwnerID    string
	Title      string
	SourcePath string
}

// Decision is the guard's answer. UploadUsed is false when an existing job
// was matched, so the caller may discard the new file.
type Decision struct {
	Outcome    Outcome
	Job        *jobs.Job
	UploadUsed bool
}

// Options wires a Guard.
type Options struct {
	Store       Store
	Launcher    Launcher
	Placeholder string
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Guard serializes intake decisions per (caller, title).
type Guard struct {
	store       Store
	launcher    Launcher
	placeholder string
	metrics     *metrics.Metrics
	logger      *slog.Logger
	locks       *keyedMutex
}

// New constructs a Guard.
func New(opts Options) *Guard {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Guard{
		store:       opts.Store,
		launcher:    opts.Launcher,
		placeholder: opts.Placeholder,
		metrics:     opts.Metrics,
		logger:      logging.NewComponentLogger(logger, "intake"),
		locks:       newKeyedMutex(),
	}
}

// Admit matches req against the caller's latest job for the same title and
// acts on the result.
func (g *Guard) Admit(ctx context.Context, req Request) (Decision, error) {
	owner := strings.TrimSpace(req.OwnerID)
	title := strings.TrimSpace(req.Title)
	if owner == "" {
		return Decision{}, services.Wrap(services.ErrValidation, "intake", "admit", "caller is required", nil)
	}
	if title == "" {
		return Decision{}, services.Wrap(services.ErrValidation, "intake", "admit", "title is required", nil)
	}

	unlock := g.locks.Lock(lockKey(owner, title))
	defer unlock()

	existing, err := g.store.LatestJobForTitle(ctx, owner, title)
	if err != nil {
		return Decision{}, fmt.Errorf("look up job: %w", err)
	}
	if existing != nil {
		return g.finish(ctx, owner, g.decide(ctx, existing))
	}
	if strings.TrimSpace(req.SourcePath) == "" {
		return Decision{}, services.Wrap(services.ErrValidation, "intake", "admit", "document is required", nil)
	}

	job, err := g.store.CreateJob(ctx, jobs.NewJob{
		OwnerID:    owner,
		Title:      title,
		SourcePath: req.SourcePath,
		CoverRef:   g.placeholder,
	})
	if errors.Is(err, jobs.ErrDuplicateOpenJob) {
		// Another process won the unique index; attach to its job.
		existing, lookupErr := g.store.LatestJobForTitle(ctx, owner, title)
		if lookupErr != nil {
			return Decision{}, fmt.Errorf("look up job: %w", lookupErr)
		}
		if existing == nil {
			return Decision{}, fmt.Errorf("create job: %w", err)
		}
		return g.finish(ctx, owner, g.decide(ctx, existing))
	}
	if err != nil {
		return Decision{}, fmt.Errorf("create job: %w", err)
	}
	if err := g.launch(job.ID); err != nil {
		if errors.Is(err, workflow.ErrAlreadyRunning) {
			return g.finish(ctx, owner, outcomeResult{outcome: OutcomeAttach, job: job, used: true})
		}
		return Decision{}, err
	}
	return g.finish(ctx, owner, outcomeResult{outcome: OutcomeNew, job: job, used: true})
}

// Resume applies the guard to a known job id owned by ownerID.
func (g *Guard) Resume(ctx context.Context, ownerID, jobID string) (Decision, error) {
	owner := strings.TrimSpace(ownerID)
	job, err := g.ownedJob(ctx, owner, jobID)
	if err != nil {
		return Decision{}, err
	}

	unlock := g.locks.Lock(lockKey(owner, job.Title))
	defer unlock()

	// Re-read under the lock; a concurrent decision may have moved it.
	job, err = g.ownedJob(ctx, owner, jobID)
	if err != nil {
		return Decision{}, err
	}
	return g.finish(ctx, owner, g.decide(ctx, job))
}

func (g *Guard) ownedJob(ctx context.Context, owner, jobID string) (*jobs.Job, error) {
	job, err := g.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job == nil || job.OwnerID != owner {
		return nil, services.Wrap(services.ErrNotFound, "intake", "resume", "job "+jobID, nil)
	}
	return job, nil
}

type outcomeResult struct {
	outcome Outcome
	job     *jobs.Job
	used    bool
	err     error
}

// decide applies the guard rules to an existing job. The caller holds the
// key lock.
func (g *Guard) decide(ctx context.Context, job *jobs.Job) outcomeResult {
	if job.IsDone() {
		return outcomeResult{outcome: OutcomeAlreadyDone, job: job}
	}
	if g.launcher.Running(job.ID) {
		return outcomeResult{outcome: OutcomeAttach, job: job}
	}
	// The runner may have finished after the snapshot was read.
	current, err := g.store.GetJob(ctx, job.ID)
	if err != nil {
		return outcomeResult{err: fmt.Errorf("reload job: %w", err)}
	}
	if current != nil {
		job = current
	}
	if job.IsDone() {
		return outcomeResult{outcome: OutcomeAlreadyDone, job: job}
	}
	if job.Stage.IsActive() {
		logging.WarnWithContext(logging.WithContext(services.WithJobID(ctx, job.ID), g.logger),
			"job has an active stage but no runner; resuming",
			"orphaned_job",
			logging.String(logging.FieldStage, string(job.Stage)),
			logging.String(logging.FieldErrorHint, "a previous daemon likely exited mid-stage"),
			logging.String(logging.FieldImpact, "pipeline restarts from its last persisted progress"),
		)
	}

	resumed, err := g.store.MarkResuming(ctx, job.ID)
	if errors.Is(err, jobs.ErrDuplicateOpenJob) {
		return outcomeResult{err: services.Wrap(services.ErrConsistency, "intake", "resume",
			"another unfinished job holds this title", err)}
	}
	if err != nil {
		return outcomeResult{err: fmt.Errorf("mark resuming: %w", err)}
	}
	if err := g.launch(resumed.ID); err != nil {
		if errors.Is(err, workflow.ErrAlreadyRunning) {
			return outcomeResult{outcome: OutcomeAttach, job: resumed}
		}
		return outcomeResult{err: err}
	}
	return outcomeResult{outcome: OutcomeResume, job: resumed}
}

func (g *Guard) launch(jobID string) error {
	if err := g.launcher.Launch(jobID); err != nil {
		if errors.Is(err, workflow.ErrAlreadyRunning) {
			return err
		}
		return fmt.Errorf("launch pipeline: %w", err)
	}
	return nil
}

func (g *Guard) finish(ctx context.Context, owner string, result outcomeResult) (Decision, error) {
	if result.err != nil {
		return Decision{}, result.err
	}
	g.metrics.IntakeDecision(string(result.outcome))
	logger := logging.WithContext(services.WithJobID(ctx, result.job.ID), g.logger)
	logger.Info("intake decision",
		logging.String(logging.FieldEventType, "intake_decision"),
		logging.String("outcome", string(result.outcome)),
		logging.String(logging.FieldCallerID, owner),
		logging.String("job_stage", string(result.job.Stage)),
		logging.Progress(result.job.Progress),
	)
	return Decision{Outcome: result.outcome, Job: result.job, UploadUsed: result.used}, nil
}

func lockKey(owner, title string) string {
	return owner + "\x00" + jobs.TitleKey(title)
}
