package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"bookture/internal/config"
	"bookture/internal/logging"
)

// Broadcaster is a publish/subscribe channel keyed by job id. It keeps no
// history: subscribers only see events published after they joined.
type Broadcaster interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe(ctx context.Context, jobID string) (*Subscription, error)
	Close() error
}

// Subscription delivers events for one job until Close is called.
type Subscription struct {
	jobID  string
	ch     chan Event
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	dropped int
	stop    func()
}

func newSubscription(jobID string, buffer int, logger *slog.Logger) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}
	return &Subscription{
		jobID:  jobID,
		ch:     make(chan Event, buffer),
		logger: logger,
	}
}

// JobID returns the job this subscription follows.
func (s *Subscription) JobID() string {
	return s.jobID
}

// Events returns the delivery channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because the subscriber
// fell behind.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// deliver hands evt to the subscriber without blocking the publisher.
func (s *Subscription) deliver(evt Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- evt:
		return true
	default:
		s.dropped++
		if s.logger != nil {
			s.logger.Debug("dropping progress event, subscriber channel full",
				logging.String(logging.FieldJobID, s.jobID),
				logging.Int("dropped", s.dropped),
			)
		}
		return false
	}
}

// Close leaves the broadcast group. Safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop := s.stop
	close(s.ch)
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// NewBroadcaster builds the backend selected by [broadcast].
func NewBroadcaster(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Broadcaster, error) {
	logger = logging.NewComponentLogger(logger, "progress")
	opts := cfg.Broadcast
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "memory":
		return NewHub(opts.Buffer, logger), nil
	case "redis":
		return NewRedis(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Prefix:   opts.RedisPrefix,
			Buffer:   opts.Buffer,
		}, logger)
	case "nats":
		return NewNATS(NATSOptions{
			URL:           opts.NATSURL,
			SubjectPrefix: opts.NATSSubjectPrefix,
			Buffer:        opts.Buffer,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown broadcast backend %q", opts.Backend)
	}
}
