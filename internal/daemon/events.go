package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bookture/internal/logging"
	"bookture/internal/progress"
	"bookture/internal/services"
)

// handleEvents streams a job's progress as Server-Sent Events. The first
// frame is a snapshot of the persisted job so late observers catch up; the
// stream ends after a terminal event.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	ctx := services.WithJobID(r.Context(), job.ID)
	logger := logging.WithContext(ctx, s.logger)

	// Join before reading the snapshot so no event falls between the two.
	sub, err := s.daemon.broadcaster.Subscribe(ctx, job.ID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	defer sub.Close()

	current, err := s.daemon.store.GetJob(ctx, job.ID)
	if err != nil || current == nil {
		current = job
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, ": ping socket\n\n")
	snapshot := progress.Snapshot(current)
	if err := writeEvent(w, snapshot); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		logger.Debug("sse flush unsupported", logging.Error(err))
		return
	}
	if snapshot.Terminal() {
		return
	}
	logger.Debug("sse observer joined", logging.String(logging.FieldEventType, "observer_joined"))

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, evt); err != nil {
				return
			}
			_ = rc.Flush()
			if evt.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w io.Writer, evt progress.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
	return err
}
