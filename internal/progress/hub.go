package progress

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned when using a closed broadcaster.
var ErrClosed = errors.New("broadcaster closed")

// Hub is the in-process Broadcaster.
type Hub struct {
	buffer int
	logger *slog.Logger

	mu     sync.Mutex
	groups map[string]map[*Subscription]struct{}
	closed bool
}

// NewHub returns an empty hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	return &Hub{
		buffer: buffer,
		logger: logger,
		groups: make(map[string]map[*Subscription]struct{}),
	}
}

// Publish delivers evt to every current subscriber of evt.JobID.
func (h *Hub) Publish(_ context.Context, evt Event) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	group := h.groups[evt.JobID]
	targets := make([]*Subscription, 0, len(group))
	for sub := range group {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(evt)
	}
	return nil
}

// Subscribe joins the broadcast group for jobID.
func (h *Hub) Subscribe(_ context.Context, jobID string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	sub := newSubscription(jobID, h.buffer, h.logger)
	sub.stop = func() { h.remove(sub) }
	group := h.groups[jobID]
	if group == nil {
		group = make(map[*Subscription]struct{})
		h.groups[jobID] = group
	}
	group[sub] = struct{}{}
	return sub, nil
}

// Subscribers returns the number of observers following jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[jobID])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[sub.jobID]
	delete(group, sub)
	if len(group) == 0 {
		delete(h.groups, sub.jobID)
	}
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var subs []*Subscription
	for _, group := range h.groups {
		for sub := range group {
			subs = append(subs, sub)
		}
	}
	h.groups = make(map[string]map[*Subscription]struct{})
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}
