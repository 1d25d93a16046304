package extraction

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// newBreaker creates the circuit breaker of one provider. It trips after
// threshold consecutive failures, rejects calls until recovery has elapsed
// and then admits a single half-open probe.
func newBreaker(provider string, threshold int, recovery time.Duration, logger *slog.Logger) *gobreaker.CircuitBreaker[Payload] {
	return gobreaker.NewCircuitBreaker[Payload](gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Timeout:     recovery,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(threshold)
		},
		IsSuccessful: healthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	})
}

// healthy reports whether err leaves the provider's health intact. Only
// retryable failures count against it; a malformed answer still means the
// provider responded, and cancellation by the caller says nothing about it.
func healthy(err error) bool {
	if err == nil {
		return true
	}
	var extErr *Error
	if errors.As(err, &extErr) {
		return !Retryable(err)
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func circuitRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
