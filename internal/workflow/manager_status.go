package workflow

import (
	"context"

	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	ActiveJobs  []string
	LastError   string
	LastJob     *jobs.Job
	StageCounts map[jobs.Stage]int
	StageHealth map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	lastErr := m.lastErr
	lastJob := m.lastJob
	stages := m.stages
	m.mu.RUnlock()

	counts, err := m.store.StageCounts(ctx)
	if err != nil {
		m.logger.Warn("failed to read stage counts", logging.Error(err))
	}

	health := make(map[string]stage.Health, len(stages))
	for _, stg := range stages {
		health[stg.name] = stg.handler.HealthCheck(ctx)
	}

	summary := StatusSummary{ActiveJobs: m.ActiveJobs(), StageCounts: counts, StageHealth: health}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastJob != nil {
		copy := *lastJob
		summary.LastJob = &copy
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *jobs.Job) {
	m.mu.Lock()
	if job != nil {
		copy := *job
		m.lastJob = &copy
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}
