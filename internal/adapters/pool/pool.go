// Package pool provides the bounded worker pool that fans batch prediction
// work out without letting one large batch exhaust the process.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/fieldline/gridcast/pkg/logger"
)

// Default pool configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	defaultQueueDepth       = 64
	poolShutdownTimeout     = 30 * time.Second
)

// Job is one unit of work. Jobs carry their own result channels; the pool
// only schedules them.
type Job func(ctx context.Context)

// Pool runs jobs on a fixed set of workers with a bounded submission queue.
type Pool struct {
	size       int
	queueDepth int
	jobs       chan Job
	name       string
	log        logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a Pool. A non-positive size defaults to a multiple of the CPU
// count; prediction work is compute bound.
func New(size int, opts ...Option) *Pool {
	if size < 1 {
		size = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		size:       size,
		queueDepth: defaultQueueDepth,
		name:       "pool",
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.jobs = make(chan Job, p.queueDepth)
	if p.log == nil {
		p.log = logger.Get().Named(p.name)
	}
	return p
}

// Start launches the workers. They exit when ctx is done or Shutdown is
// called.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	p.log.Debug(ctx, "worker pool started", logger.Int("workers", p.size))
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job(ctx)
		}
	}
}

// Submit queues a job, blocking until a slot frees, the caller's context
// ends, or the pool shuts down.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit job: %w", ctx.Err())
	case <-p.stopCh:
		return ErrPoolClosed
	}
}

// Size returns the worker count.
func (p *Pool) Size() int {
	return p.size
}

// Shutdown stops accepting jobs and waits for in-flight jobs to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	select {
	case <-done:
		return nil
	case <-shutdownCtx.Done():
		p.log.Warn(ctx, "worker pool shutdown timed out")
		return fmt.Errorf("pool shutdown: %w", shutdownCtx.Err())
	}
}
