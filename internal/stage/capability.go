package stage

import (
	"context"
	"errors"

	"bookture/internal/metrics"
	"bookture/internal/ratelimit"
	"bookture/internal/retry"
)

// Capability bundles the pacing and retry policy applied to one kind of
// external call (text generation, image generation). The zero value calls
// straight through.
type Capability struct {
	Name    string
	Limiter *ratelimit.Limiter
	Retry   *retry.Caller
	Metrics *metrics.Metrics
}

// Do runs fn under the capability's retry policy, waiting on the limiter
// before every attempt. The spacing runs from the end of the previous
// attempt, so a slow call is still followed by the full interval.
func (c Capability) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	return c.Retry.Do(ctx, op, func(ctx context.Context) error {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
		err := fn(ctx)
		c.Limiter.Done()
		c.record(err)
		return err
	})
}

func (c Capability) record(err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		outcome = metrics.OutcomeFailure
	}
	c.Metrics.ExternalCall(c.Name, outcome)
}

// Call is Do for operations that produce a result.
func Call[T any](ctx context.Context, c Capability, op string, fn func(context.Context) (T, error)) (T, error) {
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
