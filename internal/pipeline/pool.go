package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/invoice-pipeline/pkg/lifecycle"
)

// Job is one unit of work. It receives the pool's context, which is cancelled
// on shutdown.
type Job func(ctx context.Context)

// DropFunc is called in place of a queued job that is dequeued after
// shutdown, with the cause of the cancellation.
type DropFunc func(cause error)

type task struct {
	run  Job
	drop DropFunc
}

// Pool runs jobs on a fixed number of workers fed by a bounded queue.
// Jobs carry no ordering guarantee relative to each other.
type Pool struct {
	workers int
	logger  *slog.Logger

	mu     sync.RWMutex
	jobs   chan task
	closed bool
	group  *errgroup.Group
}

func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	return &Pool{
		workers: workers,
		jobs:    make(chan task, queueSize),
		logger:  logger.With("system", "pool"),
	}
}

// Run starts the workers. Jobs dequeued after ctx is cancelled are dropped
// and their DropFunc runs instead, so the queue still drains on shutdown.
func (p *Pool) Run(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.group != nil {
		return
	}
	p.group = new(errgroup.Group)

	for i := range p.workers {
		p.group.Go(func() error {
			for t := range p.jobs {
				if ctx.Err() != nil {
					p.logger.Warn("job dropped after shutdown", "worker", i)
					if t.drop != nil {
						t.drop(context.Cause(ctx))
					}
					continue
				}
				t.run(ctx)
			}
			return nil
		})
	}

	p.logger.Info("worker pool started", "workers", p.workers, "queue", cap(p.jobs))
}

// Submit enqueues job without blocking. drop may be nil.
func (p *Pool) Submit(job Job, drop DropFunc) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- task{run: job, drop: drop}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for the workers to finish the queue.
// Every caller waits, including repeated ones.
func (p *Pool) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	group := p.group
	p.mu.Unlock()

	if group == nil {
		return nil
	}
	return group.Wait()
}

// Start registers the pool with the lifecycle coordinator.
func (p *Pool) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup(func() {
		p.Run(lc.Context())
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := p.Close(); err != nil {
			p.logger.Error("worker pool close failed", "error", err)
			return
		}
		p.logger.Info("worker pool stopped")
	})

	return nil
}
