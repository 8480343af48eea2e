// Package ratelimit spaces successive calls to an external capability by a
// fixed minimum interval.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"bookture/internal/retry"
)

// Limiter enforces a minimum interval between successive calls. The gap is
// measured from when the previous call finished if the caller reports it
// through Done, and from when it was admitted otherwise. It is safe for
// concurrent use; callers queue behind each other.
type Limiter struct {
	name     string
	interval time.Duration
	now      func() time.Time
	sleep    retry.SleepFunc

	mu   sync.Mutex
	last time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSleep injects the wait function so tests can avoid real delays.
func WithSleep(fn retry.SleepFunc) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.sleep = fn
		}
	}
}

// New returns a limiter for the named capability.
func New(name string, interval time.Duration, opts ...Option) *Limiter {
	if interval < 0 {
		interval = 0
	}
	l := &Limiter{
		name:     name,
		interval: interval,
		now:      time.Now,
		sleep:    retry.Sleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the capability this limiter guards.
func (l *Limiter) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// Interval returns the configured minimum spacing.
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}

// Wait blocks until at least Interval has passed since the previous call
// finished (or was admitted, if it never reported Done), then admits this one. The first call never waits. A nil
// Limiter admits immediately.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() && l.interval > 0 {
		elapsed := l.now().Sub(l.last)
		if elapsed < l.interval {
			if err := l.sleep(ctx, l.interval-elapsed); err != nil {
				return err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.last = l.now()
	return nil
}

// Done records that the admitted call has finished, so the next Wait spaces
// from now regardless of how long the call ran.
func (l *Limiter) Done() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if now := l.now(); now.After(l.last) {
		l.last = now
	}
	l.mu.Unlock()
}

// Reset forgets the previous call so the next Wait returns immediately.
func (l *Limiter) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.last = time.Time{}
	l.mu.Unlock()
}
