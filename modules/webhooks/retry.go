package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oficinapro/backend/pkg/logger"
)

// RetryScheduler re-attempts due rows. Tick is meant to be driven by a
// queue.Periodic once a minute.
type RetryScheduler struct {
	endpoints EndpointStore
	attempts  AttemptStore
	deliverer *Deliverer
	pool      Submitter
	opts      *options
	log       *slog.Logger
}

func NewRetryScheduler(endpoints EndpointStore, attempts AttemptStore, deliverer *Deliverer, pool Submitter, opts ...Option) *RetryScheduler {
	o := newOptions(opts)
	return &RetryScheduler{
		endpoints: endpoints,
		attempts:  attempts,
		deliverer: deliverer,
		pool:      pool,
		opts:      o,
		log:       o.logger.With(logger.Component("webhook-retry")),
	}
}

// Tick claims due rows and hands each one to the pool. Rows the pool
// rejects stay leased and come back after the lease expires.
func (s *RetryScheduler) Tick(ctx context.Context) error {
	claimed, err := s.attempts.ClaimDue(ctx, s.opts.now(), s.opts.batchSize, s.opts.lease)
	if err != nil {
		return fmt.Errorf("claim due webhook attempts: %w", err)
	}
	if len(claimed) == 0 {
		return nil
	}

	s.opts.metrics.retriesClaimed(len(claimed))
	s.log.DebugContext(ctx, "claimed due webhook attempts", slog.Int("count", len(claimed)))

	for i := range claimed {
		a := &claimed[i]
		if err := s.pool.Submit(func(jobCtx context.Context) {
			if err := s.process(jobCtx, a); err != nil {
				s.log.ErrorContext(jobCtx, "webhook retry failed",
					logger.DeliveryID(a.DeliveryID),
					logger.Attempt(a.AttemptNumber),
					logger.Error(err))
			}
		}); err != nil {
			s.log.WarnContext(ctx, "webhook retry deferred, pool unavailable",
				logger.DeliveryID(a.DeliveryID),
				logger.Error(err))
		}
	}
	return nil
}

func (s *RetryScheduler) process(ctx context.Context, a *Attempt) error {
	ep, err := s.endpoints.GetEndpoint(ctx, a.TenantID, a.EndpointID)
	switch {
	case errors.Is(err, ErrEndpointNotFound):
		return s.deliverer.Abandon(ctx, a, "endpoint deleted")
	case err != nil:
		return err
	case !ep.Active:
		return s.deliverer.Abandon(ctx, a, "endpoint disabled")
	}

	if a.Status == StatusPending {
		// Lease expired on an attempt that never finished; run it again.
		return s.deliverer.Deliver(ctx, ep, a)
	}

	now := s.opts.now()
	next := a.Next(now, s.opts.lease)
	if err := a.Supersede(now); err != nil {
		return err
	}
	if err := s.attempts.SupersedeAttempt(ctx, a, next); err != nil {
		return err
	}
	return s.deliverer.Deliver(ctx, ep, next)
}
