// Package retry runs operations under a bounded exponential backoff policy.
// The wait between attempts goes through a Clock so tests can run
// without real delays.
package retry

import (
	"context"
	"time"
)

// Clock abstracts waiting between attempts.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// SystemClock waits on real time.
var SystemClock Clock = systemClock{}

// Policy bounds the number of attempts and the delay schedule between them.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

// Backoff returns the delay that follows the given 1-based attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	factor := p.Factor
	if factor < 1 {
		factor = 1
	}

	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= factor
		if p.MaxDelay > 0 && delay >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}

	d := time.Duration(delay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, returns an error rejected by retryable,
// exhausts MaxAttempts, or ctx is cancelled. It returns the last result,
// the number of attempts made, and the last error.
func Do[T any](
	ctx context.Context,
	clock Clock,
	p Policy,
	retryable func(error) bool,
	fn func(ctx context.Context, attempt int) (T, error),
) (T, int, error) {
	if clock == nil {
		clock = SystemClock
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		result T
		err    error
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = fn(ctx, attempt)
		if err == nil {
			return result, attempt, nil
		}

		if attempt == attempts || (retryable != nil && !retryable(err)) {
			return result, attempt, err
		}

		select {
		case <-ctx.Done():
			return result, attempt, err
		case <-clock.After(p.Backoff(attempt)):
		}
	}

	return result, attempts, err
}
