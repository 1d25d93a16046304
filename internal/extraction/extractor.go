package extraction

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/JaimeStill/invoice-pipeline/internal/intake"
	"github.com/JaimeStill/invoice-pipeline/pkg/retry"
)

// Extractor runs one provider against a submission with a per-call timeout,
// bounded retries and a circuit breaker per provider.
type Extractor struct {
	timeout         time.Duration
	policy          retry.Policy
	clock           retry.Clock
	defaultCurrency string
	threshold       int
	recovery        time.Duration
	logger          *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[Payload]
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithClock replaces the clock used between retry attempts.
func WithClock(c retry.Clock) Option {
	return func(e *Extractor) { e.clock = c }
}

// NewExtractor creates an extractor from a finalized configuration.
func NewExtractor(cfg *Config, logger *slog.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		timeout:         cfg.TimeoutDuration(),
		policy:          cfg.Policy(),
		clock:           retry.SystemClock,
		defaultCurrency: cfg.DefaultCurrency,
		threshold:       cfg.Breaker.Threshold,
		recovery:        cfg.Breaker.RecoveryDuration(),
		logger:          logger.With("system", "extraction"),
		breakers:        make(map[string]*gobreaker.CircuitBreaker[Payload]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract produces the canonical invoice for sub using p. Failures are
// *Error values; cancellation of ctx is returned as ctx.Err().
func (e *Extractor) Extract(ctx context.Context, sub intake.FileSubmission, p Provider) (ExtractedInvoice, error) {
	doc := Document{
		Filename:    sub.Filename(),
		ContentType: sub.ContentType(),
		Data:        sub.Bytes(),
	}

	retryable := func(err error) bool {
		return Retryable(err) && !errors.Is(err, ErrCircuitOpen)
	}

	inv, attempts, err := retry.Do(ctx, e.clock, e.policy, retryable,
		func(ctx context.Context, attempt int) (ExtractedInvoice, error) {
			inv, err := e.attempt(ctx, p, doc)
			if err != nil && ctx.Err() == nil {
				e.logger.Warn("extraction attempt failed",
					"provider", p.Name(),
					"attempt", attempt,
					"kind", KindOf(err),
					"error", err)
			}
			return inv, err
		})

	if err != nil {
		if ctx.Err() != nil {
			return ExtractedInvoice{}, ctx.Err()
		}
		return ExtractedInvoice{}, err
	}

	e.logger.Info("invoice extracted",
		"provider", p.Name(),
		"attempts", attempts,
		"confidence", inv.ProviderConfidence)

	return inv, nil
}

// BreakerState reports the circuit state of a provider: closed, half-open or open.
func (e *Extractor) BreakerState(provider string) string {
	return e.breaker(provider).State().String()
}

func (e *Extractor) attempt(ctx context.Context, p Provider, doc Document) (ExtractedInvoice, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := e.breaker(p.Name()).Execute(func() (Payload, error) {
		payload, err := p.Submit(callCtx, doc, InvoiceSchema)
		if err != nil {
			if ctx.Err() != nil {
				return Payload{}, ctx.Err()
			}
			return Payload{}, classify(p.Name(), callCtx, err)
		}
		return payload, nil
	})
	if circuitRejected(err) {
		return ExtractedInvoice{}, Unavailable(p.Name(), "circuit open", ErrCircuitOpen)
	}
	if err != nil {
		return ExtractedInvoice{}, err
	}

	raw, err := p.Parse(payload)
	if err != nil {
		if KindOf(err) == "" {
			err = Malformed(p.Name(), "provider payload does not match schema", err)
		}
		return ExtractedInvoice{}, err
	}

	return Normalize(raw, p.Name(), e.defaultCurrency)
}

func classify(provider string, callCtx context.Context, err error) error {
	var extErr *Error
	if errors.As(err, &extErr) {
		return extErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return Timeout(provider, err)
	}
	return Unavailable(provider, "provider call failed", err)
}

func (e *Extractor) breaker(provider string) *gobreaker.CircuitBreaker[Payload] {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[provider]
	if !ok {
		b = newBreaker(provider, e.threshold, e.recovery, e.logger)
		e.breakers[provider] = b
	}
	return b
}
