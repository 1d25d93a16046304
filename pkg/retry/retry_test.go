package retry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JaimeStill/invoice-pipeline/pkg/retry"
)

type fakeClock struct {
	mu     sync.Mutex
	waited []time.Duration
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waited = append(c.waited, d)
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

var errTransient = errors.New("transient")
var errFatal = errors.New("fatal")

func TestPolicy_Backoff(t *testing.T) {
	p := retry.Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Factor: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{20, time.Second},
	}

	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	clock := &fakeClock{}
	p := retry.Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Factor: 2}

	calls := 0
	got, attempts, err := retry.Do(context.Background(), clock, p, nil, func(ctx context.Context, attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errTransient
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q, want ok", got)
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3", attempts, calls)
	}

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(clock.waited) != len(want) {
		t.Fatalf("waited %v, want %v", clock.waited, want)
	}
	for i := range want {
		if clock.waited[i] != want[i] {
			t.Errorf("waited[%d] = %v, want %v", i, clock.waited[i], want[i])
		}
	}
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	clock := &fakeClock{}
	p := retry.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}

	retryable := func(err error) bool { return errors.Is(err, errTransient) }

	_, attempts, err := retry.Do(context.Background(), clock, p, retryable, func(ctx context.Context, attempt int) (int, error) {
		return 0, errFatal
	})

	if !errors.Is(err, errFatal) {
		t.Errorf("err = %v, want errFatal", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if len(clock.waited) != 0 {
		t.Errorf("waited = %v, want none", clock.waited)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	clock := &fakeClock{}
	p := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	_, attempts, err := retry.Do(context.Background(), clock, p, nil, func(ctx context.Context, attempt int) (int, error) {
		return 0, errTransient
	})

	if !errors.Is(err, errTransient) {
		t.Errorf("err = %v, want errTransient", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(clock.waited) != 2 {
		t.Errorf("waits = %d, want 2", len(clock.waited))
	}
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blocking := blockingClock{}
	p := retry.Policy{MaxAttempts: 3, BaseDelay: time.Hour}

	_, attempts, err := retry.Do(ctx, blocking, p, nil, func(ctx context.Context, attempt int) (int, error) {
		return 0, errTransient
	})

	if err == nil {
		t.Fatal("Do() succeeded, want error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

type blockingClock struct{}

func (blockingClock) After(time.Duration) <-chan time.Time {
	return make(chan time.Time)
}
