package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/metrics"
	"bookture/internal/services"
)

// executeStage records the entry threshold, runs the handler, and records
// the exit threshold. It always returns the freshest job it has seen.
func (m *Manager) executeStage(ctx context.Context, base *slog.Logger, stg pipelineStage, job *jobs.Job) (*jobs.Job, error) {
	stageCtx := services.WithStage(ctx, string(stg.stage))
	stageCtx = services.WithRequestID(stageCtx, uuid.NewString())
	logger := logging.WithContext(stageCtx, base)
	started := time.Now()

	entered, err := m.sink.Record(stageCtx, job.ID, stg.stage, stg.band.Entry)
	if err != nil {
		return job, fmt.Errorf("enter %s: %w", stg.stage, err)
	}
	job = entered
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("handler", stg.name),
		logging.Progress(job.Progress),
	)
	if stg.announce != "" {
		m.sink.Log(stageCtx, job.ID, stg.stage, job.Progress, stg.announce)
	}

	if err := stg.handler.Prepare(stageCtx, job); err != nil {
		m.metrics.ObserveStage(string(stg.stage), metrics.OutcomeFailure, time.Since(started))
		return job, err
	}
	reporter := &stageProgress{manager: m, jobID: job.ID, stage: stg.stage, band: stg.band, current: job.Progress}
	if err := stg.handler.Execute(stageCtx, job, reporter); err != nil {
		m.metrics.ObserveStage(string(stg.stage), metrics.OutcomeFailure, time.Since(started))
		return m.refresh(ctx, job), err
	}

	exited, err := m.sink.Record(stageCtx, job.ID, stg.stage, stg.band.Exit)
	if err != nil {
		return job, fmt.Errorf("exit %s: %w", stg.stage, err)
	}
	elapsed := time.Since(started)
	m.metrics.ObserveStage(string(stg.stage), metrics.OutcomeSuccess, elapsed)
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Progress(exited.Progress),
		logging.Duration("stage_duration", elapsed),
	)
	m.setLastJob(exited)
	return exited, nil
}

// refresh re-reads the job after a failed stage so the failure path sees
// the progress the handler reached.
func (m *Manager) refresh(ctx context.Context, job *jobs.Job) *jobs.Job {
	fresh, err := m.store.GetJob(context.WithoutCancel(ctx), job.ID)
	if err != nil || fresh == nil {
		return job
	}
	return fresh
}

// stageProgress maps a handler's unit counts onto the stage band.
type stageProgress struct {
	manager *Manager
	jobID   string
	stage   jobs.Stage
	band    Band

	mu      sync.Mutex
	current int
}

func (p *stageProgress) Advance(ctx context.Context, done, total int) error {
	value := p.band.Interpolate(done, total)
	job, err := p.manager.sink.Record(ctx, p.jobID, p.stage, value)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.current = job.Progress
	p.mu.Unlock()
	return nil
}

func (p *stageProgress) Log(ctx context.Context, message string) {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	p.manager.sink.Log(ctx, p.jobID, p.stage, current, message)
}
