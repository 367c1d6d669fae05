package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Periodic calls fn every interval until its context is done. Runs never
// overlap: a slow run delays the next tick.
type Periodic struct {
	name      string
	interval  time.Duration
	fn        func(ctx context.Context) error
	immediate bool
	logger    *slog.Logger
}

func NewPeriodic(name string, interval time.Duration, fn func(ctx context.Context) error, opts ...PeriodicOption) *Periodic {
	p := &Periodic{
		name:      name,
		interval:  interval,
		fn:        fn,
		immediate: true,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run returns the loop for errgroup. It returns nil on context cancellation.
func (p *Periodic) Run(ctx context.Context) func() error {
	return func() error {
		if p.interval <= 0 {
			return fmt.Errorf("periodic %s: interval must be positive", p.name)
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.logger.Info("periodic job started",
			slog.String("job", p.name),
			slog.Duration("interval", p.interval))

		if p.immediate {
			p.tick(ctx)
		}

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("periodic job stopped", slog.String("job", p.name))
				return nil
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}
}

func (p *Periodic) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("periodic job panicked",
				slog.String("job", p.name),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()

	start := time.Now()
	if err := p.fn(ctx); err != nil {
		p.logger.ErrorContext(ctx, "periodic job failed",
			slog.String("job", p.name),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
	}
}
