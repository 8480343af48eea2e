// Package retry wraps fallible external calls with bounded exponential
// backoff. Only transient failures (overloaded or rate-limited responses)
// are retried; everything else propagates on the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bookture/internal/services"
)

// ErrExhausted marks a call whose transient failures outlasted the attempt
// budget. It is distinct from the permanent error a call can return.
var ErrExhausted = errors.New("retries exhausted")

// StatusCoder is implemented by transport errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// IsTransient reports whether err is worth retrying: a 429 or 503 response,
// or an error tagged services.ErrTransient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var coded StatusCoder
	if errors.As(err, &coded) {
		switch coded.HTTPStatus() {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return true
		}
	}
	return errors.Is(err, services.ErrTransient)
}

// SleepFunc waits for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Observer is told about every retry before the backoff sleep.
type Observer func(op string, attempt int, delay time.Duration, err error)

// Caller executes operations with retry.
type Caller struct {
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
	sleep     SleepFunc
	classify  func(error) bool
	observers []Observer
}

// Option customizes a Caller.
type Option func(*Caller)

// WithSleep replaces the real timer, letting tests simulate elapsed time.
func WithSleep(fn SleepFunc) Option {
	return func(c *Caller) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithClassifier replaces IsTransient.
func WithClassifier(fn func(error) bool) Option {
	return func(c *Caller) {
		if fn != nil {
			c.classify = fn
		}
	}
}

// WithObserver registers a retry observer (logging, metrics).
func WithObserver(fn Observer) Option {
	return func(c *Caller) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// New builds a Caller allowing attempts total calls, sleeping baseDelay,
// 2*baseDelay, 4*baseDelay... between them, capped at maxDelay.
func New(attempts int, baseDelay, maxDelay time.Duration, opts ...Option) *Caller {
	if attempts <= 0 {
		attempts = 1
	}
	if baseDelay < 0 {
		baseDelay = 0
	}
	if maxDelay > 0 && maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	c := &Caller{
		attempts:  attempts,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		sleep:     Sleep,
		classify:  IsTransient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attempts returns the total call budget.
func (c *Caller) Attempts() int {
	if c == nil {
		return 1
	}
	return c.attempts
}

// Do runs fn until it succeeds, fails permanently, or the budget runs out.
// A nil Caller runs fn exactly once.
func (c *Caller) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("%s: nil operation", op)
	}
	if c == nil {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !c.classify(err) {
			return err
		}
		lastErr = err
		if attempt == c.attempts {
			break
		}
		delay := c.Backoff(attempt)
		for _, observe := range c.observers {
			observe(op, attempt, delay, err)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrExhausted, op, c.attempts, lastErr)
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, c *Caller, op string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := c.Do(ctx, op, func(ctx context.Context) error {
		value, err := fn(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}

// Backoff returns the delay applied after the given failed attempt (1-based).
func (c *Caller) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if c.maxDelay > 0 && delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if c.maxDelay > 0 && delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

// Sleep waits for delay or until ctx is done.
func Sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
