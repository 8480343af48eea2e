package stage_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bookture/internal/jobs"
	"bookture/internal/metrics"
	"bookture/internal/ratelimit"
	"bookture/internal/retry"
	"bookture/internal/services"
	"bookture/internal/stage"
)

func TestCapabilityRetriesTransientAndPacesEveryAttempt(t *testing.T) {
	var waits []time.Duration
	clock := time.Unix(0, 0)
	sleep := func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		clock = clock.Add(d)
		return nil
	}
	limiter := ratelimit.New("image", 7*time.Second,
		ratelimit.WithClock(func() time.Time { return clock }),
		ratelimit.WithSleep(sleep),
	)
	capability := stage.Capability{
		Name:    "image",
		Limiter: limiter,
		Retry:   retry.New(5, time.Second, time.Second, retry.WithSleep(sleep)),
		Metrics: metrics.New(),
	}

	calls := 0
	value, err := stage.Call(context.Background(), capability, "generate", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("%w: overloaded", services.ErrTransient)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if value != "ok" || calls != 3 {
		t.Fatalf("expected ok after 3 calls, got %q after %d", value, calls)
	}
	// Two backoff sleeps of 1s, each followed by a limiter wait of the remaining 6s.
	if len(waits) != 4 {
		t.Fatalf("expected 4 waits, got %v", waits)
	}
	if waits[1] != 6*time.Second || waits[3] != 6*time.Second {
		t.Fatalf("limiter did not space retries: %v", waits)
	}
}

func TestCapabilityWaitsFullIntervalAfterSlowCall(t *testing.T) {
	var waits []time.Duration
	clock := time.Unix(0, 0)
	limiter := ratelimit.New("image", 7*time.Second,
		ratelimit.WithClock(func() time.Time { return clock }),
		ratelimit.WithSleep(func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			clock = clock.Add(d)
			return nil
		}),
	)
	capability := stage.Capability{Name: "image", Limiter: limiter}

	slowCall := func(context.Context) error {
		clock = clock.Add(10 * time.Second)
		return nil
	}
	for n := 0; n < 2; n++ {
		if err := capability.Do(context.Background(), "generate", slowCall); err != nil {
			t.Fatalf("Do %d: %v", n+1, err)
		}
	}
	if len(waits) != 1 || waits[0] != 7*time.Second {
		t.Fatalf("expected one 7s wait between slow calls, got %v", waits)
	}
}

func TestCapabilityStopsOnPermanentError(t *testing.T) {
	capability := stage.Capability{Retry: retry.New(5, 0, 0)}
	calls := 0
	err := capability.Do(context.Background(), "analyze", func(context.Context) error {
		calls++
		return services.ErrMalformedOutput
	})
	if !errors.Is(err, services.ErrMalformedOutput) {
		t.Fatalf("expected malformed output error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent error retried %d times", calls)
	}
}

func TestZeroCapabilityCallsOnce(t *testing.T) {
	calls := 0
	if err := (stage.Capability{}).Do(context.Background(), "noop", func(context.Context) error {
		calls++
		return nil
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
}

func TestLeadingSnippetJoinsNonEmptyUnits(t *testing.T) {
	units := []jobs.Unit{{Content: "first page"}, {Content: "  "}, {Content: "second page\n"}}
	if got := stage.LeadingSnippet(units); got != "first page\n\nsecond page" {
		t.Fatalf("unexpected snippet %q", got)
	}
}
