package deadletter

import (
	"context"
	"log/slog"
	"time"

	"github.com/JaimeStill/invoice-pipeline/pkg/lifecycle"
)

// Sweeper purges terminal entries older than the retention window on a fixed
// interval for as long as the lifecycle context lives.
type Sweeper struct {
	sys       System
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewSweeper(sys System, retention, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		sys:       sys,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    logger.With("system", "deadletter-sweeper"),
	}
}

// Sweep runs one purge pass and returns the number of removed entries.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.sys.Purge(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("dead letters purged", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Start runs the sweep loop as a shutdown hook so Shutdown waits for it to exit.
func (s *Sweeper) Start(lc *lifecycle.Coordinator) error {
	lc.OnShutdown(func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		ctx := lc.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
					s.logger.Error("dead letter purge failed", "error", err)
				}
			}
		}
	})
	return nil
}
