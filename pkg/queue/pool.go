package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Job is a unit of background work.
type Job func(ctx context.Context)

// Pool runs submitted jobs on a fixed number of goroutines.
type Pool struct {
	jobs       chan Job
	workers    int
	jobTimeout time.Duration
	logger     *slog.Logger

	mu      sync.Mutex // guards state transitions and sends on jobs
	started bool
	stopped bool
	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewPool(opts ...PoolOption) *Pool {
	o := &poolOptions{
		workers:    4,
		queueSize:  256,
		jobTimeout: 5 * time.Minute,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Pool{
		jobs:       make(chan Job, o.queueSize),
		workers:    o.workers,
		jobTimeout: o.jobTimeout,
		logger:     o.logger,
	}
}

// Start launches the workers. Jobs run with a context derived from ctx that
// is not cancelled when ctx is, so accepted work can finish during shutdown.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPoolStopped
	}
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	p.baseCtx = context.WithoutCancel(ctx)

	p.wg.Add(p.workers)
	for range p.workers {
		go p.work()
	}

	p.logger.Info("worker pool started",
		slog.Int("workers", p.workers),
		slog.Int("queue_size", cap(p.jobs)))
	return nil
}

// Submit enqueues job without blocking.
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrPoolFull
	}
}

// Stop rejects new jobs, waits for queued and running jobs and returns.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.logger.Info("worker pool stopping, draining jobs", slog.Int("queued", len(p.jobs)))
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
	return nil
}

// Run starts the pool and stops it once ctx is done.
func (p *Pool) Run(ctx context.Context) func() error {
	return func() error {
		if err := p.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return p.Stop()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.execute(job)
	}
}

func (p *Pool) execute(job Job) {
	ctx, cancel := context.WithTimeout(p.baseCtx, p.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	job(ctx)
}
