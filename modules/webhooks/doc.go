// Package webhooks delivers tenant domain events to subscriber HTTP endpoints.
//
// Producers call Dispatcher.Dispatch; the call returns immediately and the
// fan-out runs on a worker pool. Every HTTP attempt is recorded as an Attempt
// row. A failed attempt is rescheduled on the 1/5/15/30/60 minute ladder until
// the endpoint's MaxAttempts is reached, and RetryScheduler picks due rows up
// with a lease so several service instances can run side by side. Ten
// consecutive failures disable an endpoint until an operator reactivates it.
//
// Payloads are serialised once per event and stored verbatim, so every retry
// of a delivery sends the same bytes to the URL captured on the first attempt.
//
// Wiring:
//
//	store := webhooks.NewPostgresStore(pool)
//	opts := []webhooks.Option{webhooks.WithLogger(log), webhooks.WithMetrics(metrics)}
//
//	deliverer := webhooks.NewDeliverer(store, store, webhook.NewClient(), opts...)
//	dispatcher := webhooks.NewDispatcher(store, store, deliverer, workers, flags, opts...)
//	retries := webhooks.NewRetryScheduler(store, store, deliverer, workers, opts...)
//
//	dispatcher.Dispatch(ctx, tenantID, webhooks.EventOrderCreated, order.ID, "OrdemServico", order)
package webhooks
