package workflow

import (
	"context"
	"errors"
	"log/slog"

	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/services"
)

// handleFailure moves the job to Error, keeping its progress, and tells
// observers. Persistence uses a context detached from cancellation so a
// failure racing shutdown is still recorded.
func (m *Manager) handleFailure(ctx context.Context, logger *slog.Logger, stage jobs.Stage, job *jobs.Job, stageErr error) {
	persistCtx := context.WithoutCancel(ctx)
	m.setLastError(stageErr)

	failed, err := m.sink.Fail(persistCtx, job.ID, stageErr)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to persist stage failure", "stage_failure_unrecorded",
			logging.String(logging.FieldStage, string(stage)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database access; the job is reclaimed on next startup"),
		)
		failed = job
	}

	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String(logging.FieldStage, string(stage)),
		logging.Progress(failed.Progress),
		logging.Bool("retryable", services.Retryable(stageErr)),
		logging.Error(stageErr),
		logging.String(logging.FieldErrorHint, failureHint(stageErr)),
	)
	m.setLastJob(failed)
	m.notifyFailed(persistCtx, failed, stage, stageErr)
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrConfiguration):
		return "fix the configuration and resubmit the document"
	case errors.Is(err, services.ErrValidation):
		return "the document cannot be processed; check its format and content"
	case errors.Is(err, services.ErrMalformedOutput):
		return "the model returned unusable output; resubmit to resume"
	default:
		return "resubmit the document to resume from the failed stage"
	}
}
