package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(recorded *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*recorded = append(*recorded, d)
		return ctx.Err()
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	policy := Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, sleep: noSleep(&delays)}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("unexpected call count: got %d want 3", calls)
	}
	if len(delays) != 2 || delays[0] != 100*time.Millisecond || delays[1] != 200*time.Millisecond {
		t.Fatalf("unexpected delays: got %v want [100ms 200ms]", delays)
	}
}

func TestDo_StopsOnNonRetryableError(t *testing.T) {
	t.Parallel()

	permanent := errors.New("bad request")
	var delays []time.Duration
	policy := Policy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
		sleep:       noSleep(&delays),
	}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("unexpected error: got %v want %v", err, permanent)
	}
	if calls != 1 {
		t.Fatalf("unexpected call count: got %d want 1", calls)
	}
	if len(delays) != 0 {
		t.Fatalf("did not expect any backoff, got %v", delays)
	}
}

func TestDo_ReturnsLastErrorWhenExhausted(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	policy := Policy{MaxAttempts: 2, sleep: noSleep(&delays)}

	err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		if attempt == 1 {
			return errors.New("first")
		}
		return errors.New("second")
	})
	if err == nil || err.Error() != "second" {
		t.Fatalf("unexpected error: got %v want second", err)
	}
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Hour}

	calls := 0
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return errors.New("unavailable")
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if calls != 1 {
		t.Fatalf("unexpected call count: got %d want 1", calls)
	}
}

func TestDelay_CapsAndJitters(t *testing.T) {
	t.Parallel()

	policy := Policy{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	if got := policy.Delay(5); got != 3*time.Second {
		t.Fatalf("unexpected capped delay: got %s want 3s", got)
	}

	policy.Jitter = 0.5
	policy.rand = func() float64 { return 1 }
	if got := policy.Delay(1); got != 1500*time.Millisecond {
		t.Fatalf("unexpected jittered delay: got %s want 1.5s", got)
	}
	policy.rand = func() float64 { return 0 }
	if got := policy.Delay(1); got != 500*time.Millisecond {
		t.Fatalf("unexpected jittered delay: got %s want 500ms", got)
	}
}
