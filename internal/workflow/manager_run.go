package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/services"
)

// Start binds detached runners to ctx. Runners launched earlier keep their
// original context.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrStopped
	}
	if len(m.stages) == 0 {
		return errors.New("workflow stages not configured")
	}
	base, cancel := context.WithCancel(ctx)
	previous := m.cancel
	m.base = base
	m.cancel = func() {
		cancel()
		previous()
	}
	return nil
}

// Stop cancels every runner and waits for them to return. Jobs interrupted
// this way keep their active stage and are reclaimed on the next startup.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Launch starts a detached runner for jobID. It returns ErrAlreadyRunning
// when one is alive.
func (m *Manager) Launch(jobID string) error {
	ctx, release, err := m.claim(jobID, nil)
	if err != nil {
		return err
	}
	go func() {
		defer release()
		if err := m.run(ctx, jobID); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Debug("detached run ended with error",
				logging.String(logging.FieldJobID, jobID),
				logging.Error(err),
			)
		}
	}()
	return nil
}

// Run drives jobID through the pipeline and returns when it completes or
// fails. Completed jobs are a no-op; jobs in Error are refused.
func (m *Manager) Run(ctx context.Context, jobID string) error {
	runCtx, release, err := m.claim(jobID, ctx)
	if err != nil {
		return err
	}
	defer release()
	return m.run(runCtx, jobID)
}

// Running reports whether a runner for jobID is alive in this process.
func (m *Manager) Running(jobID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.running[jobID]
	return ok
}

// ActiveJobs lists the jobs with a live runner.
func (m *Manager) ActiveJobs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Wait blocks until every runner has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// claim registers a runner for jobID. A nil parent derives the runner's
// context from the manager's base context.
func (m *Manager) claim(jobID string, parent context.Context) (context.Context, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, nil, ErrStopped
	}
	if _, ok := m.running[jobID]; ok {
		return nil, nil, fmt.Errorf("%s: %w", jobID, ErrAlreadyRunning)
	}
	if parent == nil {
		parent = m.base
	}
	ctx, cancel := context.WithCancel(parent)
	m.running[jobID] = cancel
	m.wg.Add(1)
	release := func() {
		cancel()
		m.mu.Lock()
		delete(m.running, jobID)
		m.mu.Unlock()
		m.wg.Done()
	}
	return ctx, release, nil
}

func (m *Manager) run(ctx context.Context, jobID string) error {
	ctx = services.WithJobID(ctx, jobID)

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "workflow", "load job", "job "+jobID+" not found", nil)
	}
	switch job.Stage {
	case jobs.StageCompleted:
		return nil
	case jobs.StageError:
		return fmt.Errorf("%s: %w", jobID, ErrJobFailed)
	}

	m.mu.RLock()
	stages := m.stages
	m.mu.RUnlock()
	if len(stages) == 0 {
		return errors.New("workflow stages not configured")
	}

	logger, closeLog := m.jobLogger(ctx, job)
	defer closeLog()

	m.metrics.PipelineStarted()
	defer m.metrics.PipelineFinished()
	logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.String("title", job.Title),
		logging.String("from_stage", string(job.Stage)),
		logging.Progress(job.Progress),
	)

	for _, stg := range stages {
		pending, err := stg.pending(ctx, job)
		if err != nil {
			m.handleFailure(ctx, logger, stg.stage, job, err)
			return err
		}
		if !pending {
			logger.Info("stage skipped",
				logging.String(logging.FieldEventType, "stage_skipped"),
				logging.String(logging.FieldStage, string(stg.stage)),
				logging.Progress(job.Progress),
			)
			m.metrics.ObserveStage(string(stg.stage), "skipped", 0)
			continue
		}
		next, err := m.executeStage(ctx, logger, stg, job)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				logger.Info("pipeline interrupted",
					logging.String(logging.FieldEventType, "pipeline_interrupted"),
					logging.String(logging.FieldStage, string(stg.stage)),
				)
				return err
			}
			m.handleFailure(ctx, logger, stg.stage, next, err)
			return err
		}
		job = next
	}

	done, err := m.sink.Record(ctx, jobID, jobs.StageCompleted, CompletedProgress)
	if err != nil {
		m.handleFailure(ctx, logger, jobs.StageCompleted, job, err)
		return err
	}
	m.sink.Log(ctx, jobID, jobs.StageCompleted, done.Progress, "Book completed.")
	logger.Info("pipeline completed",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.Int("units", done.TotalUnits),
	)
	m.setLastJob(done)
	m.notifyCompleted(ctx, done)
	return nil
}
