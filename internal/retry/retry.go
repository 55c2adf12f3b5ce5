package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxAttempts = 2
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
)

// Policy is the single backoff policy applied around each provider attempt.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the +/- fraction applied to each computed delay.
	Jitter float64
	// Retryable decides whether an error deserves another attempt. Nil means
	// every error except context cancellation is retried.
	Retryable func(error) bool

	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// Func is one attempt. attempt starts at 1.
type Func func(ctx context.Context, attempt int) error

// Do runs fn until it succeeds, the attempts are used up, the error is not
// retryable, or ctx is done. The last attempt error is returned.
func (p Policy) Do(ctx context.Context, fn Func) error {
	if fn == nil {
		return fmt.Errorf("retry func is nil")
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts || !p.retryable(lastErr) {
			return lastErr
		}
		if err := p.wait(ctx, p.Delay(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// Delay returns the backoff before attempt n+1: BaseDelay*2^(n-1), capped at
// MaxDelay, then jittered.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	if p.Jitter > 0 {
		random := rand.Float64
		if p.rand != nil {
			random = p.rand
		}
		delay += delay * p.Jitter * (2*random() - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
