package progress

import (
	"encoding/json"
	"fmt"
	"time"

	"bookture/internal/jobs"
)

// EventType distinguishes progress, failure, and log events.
type EventType string

const (
	EventUpdate EventType = "pipeline_update"
	EventError  EventType = "pipeline_error"
	EventLog    EventType = "log_update"
)

// Event is an ephemeral progress notification for one job.
type Event struct {
	JobID     string     `json:"jobId"`
	Type      EventType  `json:"type"`
	Stage     jobs.Stage `json:"stage"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message,omitempty"`
	Timestamp time.Time  `json:"ts"`
}

// Snapshot builds an update event from persisted job state, used to catch
// up observers that connect mid-run.
func Snapshot(job *jobs.Job) Event {
	evt := Event{
		JobID:     job.ID,
		Type:      EventUpdate,
		Stage:     job.Stage,
		Progress:  job.Progress,
		Timestamp: job.UpdatedAt,
	}
	if job.Stage == jobs.StageError {
		evt.Type = EventError
		evt.Message = job.ErrorMessage
	}
	return evt
}

// Terminal reports whether no further events are expected after evt.
func (e Event) Terminal() bool {
	return e.Type == EventError || (e.Type == EventUpdate && e.Stage == jobs.StageCompleted)
}

func encodeEvent(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

func decodeEvent(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return evt, nil
}
