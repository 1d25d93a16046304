package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JaimeStill/invoice-pipeline/internal/config"
	"github.com/JaimeStill/invoice-pipeline/internal/deadletter"
	"github.com/JaimeStill/invoice-pipeline/internal/extraction"
	"github.com/JaimeStill/invoice-pipeline/internal/intake"
	"github.com/JaimeStill/invoice-pipeline/internal/ledger"
	"github.com/JaimeStill/invoice-pipeline/internal/matching"
	"github.com/JaimeStill/invoice-pipeline/internal/pipeline"
	"github.com/JaimeStill/invoice-pipeline/internal/tracker"
	"github.com/JaimeStill/invoice-pipeline/pkg/lifecycle"
)

const sweepInterval = time.Hour

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Tracker     tracker.System
	DeadLetters deadletter.System
	Ledger      ledger.System
	Pipeline    *pipeline.Orchestrator
	Pool        *pipeline.Pool
	Sweeper     *deadletter.Sweeper

	closers []func() error
}

// NewDomain creates all domain systems from the API runtime. Provider and
// dead-letter clients are released by Close.
func NewDomain(ctx context.Context, runtime *Runtime, cfg *config.Config) (*Domain, error) {
	db := runtime.Database.Connection()
	d := &Domain{
		Tracker: tracker.New(db, runtime.Logger),
		Ledger:  ledger.New(db, runtime.Logger),
		Pool:    pipeline.NewPool(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, runtime.Logger),
	}

	deadLetters, closeDL, err := deadletter.Open(ctx, &cfg.DeadLetter, db, runtime.Logger)
	if err != nil {
		return nil, fmt.Errorf("dead-letter store init failed: %w", err)
	}
	d.DeadLetters = deadLetters
	d.closers = append(d.closers, closeDL)
	d.Sweeper = deadletter.NewSweeper(deadLetters, cfg.DeadLetter.RetentionDuration(), sweepInterval, runtime.Logger)

	registry, closeProviders, err := extraction.BuildRegistry(ctx, &cfg.Extraction, runtime.Logger)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("extraction providers init failed: %w", err)
	}
	d.closers = append(d.closers, closeProviders)

	cache, err := extraction.NewCache(cfg.Extraction.CacheSize)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("extraction cache init failed: %w", err)
	}

	d.Pipeline = pipeline.New(&cfg.Pipeline, pipeline.Deps{
		Validator:   intake.NewValidator(&cfg.Intake),
		Extractor:   extraction.NewExtractor(&cfg.Extraction, runtime.Logger),
		Providers:   registry,
		Cache:       cache,
		Engine:      matching.NewEngine(&cfg.Matching),
		Ledger:      d.Ledger,
		Tracker:     d.Tracker,
		DeadLetters: d.DeadLetters,
		Payloads:    pipeline.NewPayloadStore(runtime.Storage),
		Pool:        d.Pool,
	}, runtime.Logger)

	return d, nil
}

// Start registers the worker pool and retention sweeper with the lifecycle.
// Clients are closed once the pool has drained.
func (d *Domain) Start(lc *lifecycle.Coordinator) error {
	if err := d.Pool.Start(lc); err != nil {
		return fmt.Errorf("worker pool start failed: %w", err)
	}
	if d.Sweeper != nil {
		if err := d.Sweeper.Start(lc); err != nil {
			return fmt.Errorf("dead-letter sweeper start failed: %w", err)
		}
	}

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		d.Pool.Close()
		d.Close()
	})
	return nil
}

// Close releases provider and dead-letter clients.
func (d *Domain) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
