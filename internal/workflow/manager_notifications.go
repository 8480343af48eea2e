package workflow

import (
	"context"
	"errors"

	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/notifications"
	"bookture/internal/services"
)

func (m *Manager) notifyCompleted(ctx context.Context, job *jobs.Job) {
	m.publish(ctx, notifications.EventPipelineCompleted, notifications.Payload{
		"title": job.Title,
		"units": job.TotalUnits,
	})
}

func (m *Manager) notifyFailed(ctx context.Context, job *jobs.Job, stage jobs.Stage, stageErr error) {
	m.publish(ctx, notifications.EventPipelineFailed, notifications.Payload{
		"title": job.Title,
		"stage": string(stage),
		"error": services.UserMessage(stageErr),
	})
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, notification not sent", logging.String("event", string(event)))
			return
		}
		logging.WarnWithContext(m.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "pipeline state is unaffected"),
		)
	}
}
