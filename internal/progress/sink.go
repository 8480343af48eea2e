package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/metrics"
	"bookture/internal/services"
)

// JobRecorder is the persistence side of the sink.
type JobRecorder interface {
	RecordProgress(ctx context.Context, id string, stage jobs.Stage, progress int) (*jobs.Job, error)
	MarkError(ctx context.Context, id, message string) (*jobs.Job, error)
}

// Sink persists progress and then broadcasts it.
type Sink struct {
	store       JobRecorder
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewSink builds a sink. broadcaster may be nil when no live channel is
// configured; m may be nil.
func NewSink(store JobRecorder, broadcaster Broadcaster, m *metrics.Metrics, logger *slog.Logger) *Sink {
	return &Sink{
		store:       store,
		broadcaster: broadcaster,
		metrics:     m,
		logger:      logging.NewComponentLogger(logger, "progress"),
		now:         time.Now,
	}
}

// Record persists stage/progress for the job and publishes the result. The
// published progress is the persisted value, which never decreases.
func (s *Sink) Record(ctx context.Context, jobID string, stage jobs.Stage, progress int) (*jobs.Job, error) {
	job, err := s.store.RecordProgress(ctx, jobID, stage, progress)
	if err != nil {
		return nil, fmt.Errorf("record progress: %w", err)
	}
	s.publish(ctx, Event{
		JobID:    jobID,
		Type:     EventUpdate,
		Stage:    job.Stage,
		Progress: job.Progress,
	})
	return job, nil
}

// Fail moves the job to Error keeping its progress, then publishes an
// error event carrying the failure message.
func (s *Sink) Fail(ctx context.Context, jobID string, cause error) (*jobs.Job, error) {
	message := services.UserMessage(cause)
	job, err := s.store.MarkError(ctx, jobID, message)
	if err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}
	s.publish(ctx, Event{
		JobID:    jobID,
		Type:     EventError,
		Stage:    job.Stage,
		Progress: job.Progress,
		Message:  message,
	})
	return job, nil
}

// Log publishes a free-form log line for observers. Nothing is persisted.
func (s *Sink) Log(ctx context.Context, jobID string, stage jobs.Stage, progress int, message string) {
	s.publish(ctx, Event{
		JobID:    jobID,
		Type:     EventLog,
		Stage:    stage,
		Progress: progress,
		Message:  message,
	})
}

func (s *Sink) publish(ctx context.Context, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.now().UTC()
	}
	s.metrics.ProgressEvent(string(evt.Type))
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Publish(ctx, evt); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "progress broadcast failed", "broadcast_failed",
			logging.String(logging.FieldJobID, evt.JobID),
			logging.String("type", string(evt.Type)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the broadcast backend connection"),
			logging.String(logging.FieldImpact, "live observers miss this update; persisted state is unaffected"),
		)
	}
}
