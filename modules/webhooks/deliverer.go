package webhooks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oficinapro/backend/pkg/logger"
	"github.com/oficinapro/backend/pkg/webhook"
)

// DeliveryClient performs one HTTP attempt.
type DeliveryClient interface {
	Deliver(ctx context.Context, req webhook.Request) webhook.Outcome
}

// Deliverer runs a single leased attempt and does the bookkeeping around
// it: the attempt row, the endpoint's circuit breaker, alerts and metrics.
type Deliverer struct {
	endpoints EndpointStore
	attempts  AttemptStore
	client    DeliveryClient
	opts      *options
	log       *slog.Logger
}

func NewDeliverer(endpoints EndpointStore, attempts AttemptStore, client DeliveryClient, opts ...Option) *Deliverer {
	o := newOptions(opts)
	return &Deliverer{
		endpoints: endpoints,
		attempts:  attempts,
		client:    client,
		opts:      o,
		log:       o.logger.With(logger.Component("webhook-deliverer")),
	}
}

func request(ep *Endpoint, url string, payload []byte) webhook.Request {
	return webhook.Request{
		URL:     url,
		Payload: payload,
		Secret:  ep.Secret,
		Headers: ep.Headers,
		Timeout: ep.Timeout,
	}
}

// Deliver sends a to ep. The row must be PENDING. URL and payload come from
// the row; secret, headers, timeout and attempt budget from ep as it is now.
//
// The lease is renewed before the request goes out. If the lease was lost,
// the retry scheduler has reclaimed the row and Deliver returns without
// sending.
func (d *Deliverer) Deliver(ctx context.Context, ep *Endpoint, a *Attempt) error {
	if err := d.attempts.RenewLease(ctx, a, LeaseUntil(d.opts.now(), d.opts.lease)); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			d.log.DebugContext(ctx, "webhook attempt reclaimed by another worker, skipping",
				logger.DeliveryID(a.DeliveryID),
				logger.Attempt(a.AttemptNumber))
			return nil
		}
		d.log.ErrorContext(ctx, "failed to renew webhook attempt lease",
			logger.DeliveryID(a.DeliveryID),
			logger.Attempt(a.AttemptNumber),
			logger.Error(err))
		return err
	}

	out := d.client.Deliver(ctx, request(ep, a.URL, a.Payload))
	now := d.opts.now()

	from := a.Status
	if err := a.Settle(out, ep.MaxAttempts, d.opts.backoff, now); err != nil {
		return err
	}
	if err := d.attempts.SaveAttempt(ctx, a, from); err != nil {
		d.log.ErrorContext(ctx, "failed to record webhook attempt",
			logger.DeliveryID(a.DeliveryID),
			logger.Attempt(a.AttemptNumber),
			logger.Error(err))
		return err
	}

	d.opts.metrics.attempt(a.Status, out.Latency)
	d.logOutcome(ctx, a, out)

	var disabled bool
	updated, err := d.endpoints.UpdateHealth(ctx, a.TenantID, a.EndpointID, func(e *Endpoint) {
		if out.Succeeded() {
			e.RegisterSuccess(now)
			return
		}
		disabled = e.RegisterFailure(now)
	})
	switch {
	case errors.Is(err, ErrEndpointNotFound):
		return nil
	case err != nil:
		d.log.ErrorContext(ctx, "failed to update endpoint health",
			logger.TenantID(a.TenantID),
			logger.EndpointID(a.EndpointID),
			logger.Error(err))
		return err
	}

	if disabled {
		d.opts.metrics.endpointDisabled()
		if err := d.opts.notifier.EndpointDisabled(ctx, *updated); err != nil {
			d.log.ErrorContext(ctx, "failed to send endpoint disabled notification",
				logger.EndpointID(updated.ID),
				logger.Error(err))
		}
	}
	return nil
}

func (d *Deliverer) logOutcome(ctx context.Context, a *Attempt, out webhook.Outcome) {
	attrs := []any{
		logger.TenantID(a.TenantID),
		logger.EndpointID(a.EndpointID),
		logger.DeliveryID(a.DeliveryID),
		logger.EventType(a.EventType),
		logger.Attempt(a.AttemptNumber),
		slog.String("status", string(a.Status)),
		logger.StatusCode(out.StatusCode),
		logger.Duration(out.Latency),
	}

	switch a.Status {
	case StatusSuccess:
		d.log.InfoContext(ctx, "webhook delivered", attrs...)
	case StatusRetryScheduled:
		attrs = append(attrs, slog.Time("next_retry_at", *a.NextRetryAt), logger.Error(out.Err))
		d.log.WarnContext(ctx, "webhook attempt failed, retry scheduled", attrs...)
	default:
		attrs = append(attrs, logger.Error(out.Err))
		d.log.ErrorContext(ctx, "webhook delivery exhausted", attrs...)
	}
}

// Abandon terminates a claimed row without a network call.
func (d *Deliverer) Abandon(ctx context.Context, a *Attempt, reason string) error {
	from := a.Status
	if err := a.Abandon(reason, d.opts.now()); err != nil {
		return err
	}
	if err := d.attempts.SaveAttempt(ctx, a, from); err != nil {
		return err
	}
	d.opts.metrics.abandoned()
	d.log.InfoContext(ctx, "webhook attempt abandoned",
		logger.TenantID(a.TenantID),
		logger.EndpointID(a.EndpointID),
		logger.DeliveryID(a.DeliveryID),
		logger.Attempt(a.AttemptNumber),
		slog.String("reason", reason))
	return nil
}
