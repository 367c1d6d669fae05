package webhooks

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/oficinapro/backend/pkg/feature"
	"github.com/oficinapro/backend/pkg/logger"
	"github.com/oficinapro/backend/pkg/queue"
)

// FeatureFlag is the tenant flag that turns webhooks off entirely. Tenants
// without a value are enabled.
const FeatureFlag = "webhooks"

// Submitter accepts background jobs without blocking. *queue.Pool
// implements it.
type Submitter interface {
	Submit(job queue.Job) error
}

// Dispatcher fans domain events out to subscribed endpoints.
type Dispatcher struct {
	endpoints EndpointStore
	attempts  AttemptStore
	deliverer *Deliverer
	pool      Submitter
	flags     feature.Provider
	opts      *options
	log       *slog.Logger
}

// NewDispatcher builds a Dispatcher. flags may be nil, in which case every
// tenant is enabled.
func NewDispatcher(endpoints EndpointStore, attempts AttemptStore, deliverer *Deliverer, pool Submitter, flags feature.Provider, opts ...Option) *Dispatcher {
	o := newOptions(opts)
	return &Dispatcher{
		endpoints: endpoints,
		attempts:  attempts,
		deliverer: deliverer,
		pool:      pool,
		flags:     flags,
		opts:      o,
		log:       o.logger.With(logger.Component("webhook-dispatcher")),
	}
}

// Dispatch schedules delivery of an event and returns immediately. The
// envelope is serialised before returning, so data may be reused by the
// caller. Failures are logged; they never reach the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID uuid.UUID, eventType, entityID, entityType string, data any) {
	env := NewEnvelope(eventType, entityID, entityType, data, d.opts.now())
	payload, err := env.Marshal()
	if err != nil {
		d.opts.metrics.skipped("serialization")
		d.log.ErrorContext(ctx, "failed to serialize webhook envelope",
			logger.TenantID(tenantID),
			logger.EventType(eventType),
			logger.Error(err))
		return
	}
	// The job must not keep a reference to the caller's data.
	env.Data = nil

	err = d.pool.Submit(func(jobCtx context.Context) {
		d.fanOut(jobCtx, tenantID, env, payload)
	})
	if err != nil {
		d.opts.metrics.skipped("queue_full")
		d.log.ErrorContext(ctx, "webhook event dropped, dispatch queue unavailable",
			logger.TenantID(tenantID),
			logger.EventType(eventType),
			logger.Error(err))
	}
}

func (d *Dispatcher) enabled(ctx context.Context, tenantID uuid.UUID) bool {
	if d.flags == nil {
		return true
	}
	on, err := feature.Enabled(ctx, d.flags, tenantID.String(), FeatureFlag, true)
	if err != nil {
		d.log.WarnContext(ctx, "feature flag lookup failed, assuming webhooks enabled",
			logger.TenantID(tenantID),
			logger.Error(err))
	}
	return on
}

func (d *Dispatcher) fanOut(ctx context.Context, tenantID uuid.UUID, env Envelope, payload []byte) {
	if !d.enabled(ctx, tenantID) {
		d.opts.metrics.skipped("feature_disabled")
		d.log.DebugContext(ctx, "webhooks disabled for tenant",
			logger.TenantID(tenantID),
			logger.EventType(env.Event))
		return
	}

	endpoints, err := d.endpoints.ListSubscribed(ctx, tenantID, env.Event)
	if err != nil {
		d.opts.metrics.skipped("store_error")
		d.log.ErrorContext(ctx, "failed to list subscribed endpoints",
			logger.TenantID(tenantID),
			logger.EventType(env.Event),
			logger.Error(err))
		return
	}
	if len(endpoints) == 0 {
		return
	}

	for i := range endpoints {
		ep := &endpoints[i]
		a := NewAttempt(ep, env, payload, d.opts.now(), d.opts.lease)
		if err := d.attempts.CreateAttempt(ctx, a); err != nil {
			d.log.ErrorContext(ctx, "failed to create webhook attempt",
				logger.TenantID(tenantID),
				logger.EndpointID(ep.ID),
				logger.EventType(env.Event),
				logger.Error(err))
			continue
		}

		// A row that cannot be submitted keeps its lease and is picked up
		// by the retry scheduler once the lease expires.
		if err := d.pool.Submit(func(jobCtx context.Context) {
			_ = d.deliverer.Deliver(jobCtx, ep, a)
		}); err != nil {
			d.log.WarnContext(ctx, "webhook attempt deferred to retry scheduler",
				logger.EndpointID(ep.ID),
				logger.DeliveryID(a.DeliveryID),
				logger.Error(err))
		}
	}
}
