package queue

import (
	"log/slog"
	"time"
)

// PoolOption configures a Pool.
type PoolOption func(*poolOptions)

type poolOptions struct {
	workers    int
	queueSize  int
	jobTimeout time.Duration
	logger     *slog.Logger
}

// WithWorkers sets the number of concurrent jobs.
func WithWorkers(n int) PoolOption {
	return func(o *poolOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithQueueSize sets how many accepted jobs may wait for a free worker.
func WithQueueSize(n int) PoolOption {
	return func(o *poolOptions) {
		if n >= 0 {
			o.queueSize = n
		}
	}
}

// WithJobTimeout bounds every job's context.
func WithJobTimeout(d time.Duration) PoolOption {
	return func(o *poolOptions) {
		if d > 0 {
			o.jobTimeout = d
		}
	}
}

func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(o *poolOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// PeriodicOption configures a Periodic runner.
type PeriodicOption func(*Periodic)

func WithPeriodicLogger(l *slog.Logger) PeriodicOption {
	return func(p *Periodic) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithoutImmediateRun waits for the first tick instead of running on start.
func WithoutImmediateRun() PeriodicOption {
	return func(p *Periodic) {
		p.immediate = false
	}
}
