package webhooks_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oficinapro/backend/modules/webhooks"
	"github.com/oficinapro/backend/pkg/feature"
	"github.com/oficinapro/backend/pkg/webhook"
)

const (
	erpURL   = "http://erp.example.com/hooks"
	crmURL   = "http://crm.example.com/hooks"
	stockURL = "http://stock.example.com/hooks"
)

func TestDispatch_SelectiveFanOut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, nil)
	tenant := uuid.New()

	erp := e.endpoint(t, tenant, erpURL, 3, webhooks.EventOrderCreated)
	crm := e.endpoint(t, tenant, crmURL, 3, webhooks.EventOrderCreated, webhooks.EventCustomerCreated)
	stock := e.endpoint(t, tenant, stockURL, 3, webhooks.EventStockLow)
	_, err := e.service.UpdateEndpoint(ctx, tenant, crm.ID, webhooks.EndpointInput{
		Name: "CRM", URL: crmURL, Events: []string{webhooks.EventOrderCreated},
	})
	require.NoError(t, err)
	other := e.endpoint(t, uuid.New(), "http://other.example.com", 3, webhooks.EventOrderCreated)

	e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderCreated, "42", "OrdemServico", map[string]any{"numero": 42})
	assert.Zero(t, e.client.total(), "dispatch does not deliver inline")
	e.pool.drain(ctx)

	assert.Len(t, e.client.calls(erpURL), 1)
	assert.Len(t, e.client.calls(crmURL), 1)
	assert.Empty(t, e.client.calls(stockURL))
	assert.Empty(t, e.client.calls(other.URL))

	for _, ep := range []*webhooks.Endpoint{erp, crm} {
		rows := e.history(t, tenant, ep.ID)
		require.Len(t, rows, 1)
		assert.Equal(t, webhooks.StatusSuccess, rows[0].Status)
		assert.Equal(t, 1, rows[0].AttemptNumber)
	}
	assert.Empty(t, e.history(t, tenant, stock.ID))

	assert.Equal(t, e.client.calls(erpURL)[0].Payload, e.client.calls(crmURL)[0].Payload, "serialised once per event")
}

func TestDispatch_FeatureFlagGating(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	flags := feature.NewMemoryProvider()
	off, on := uuid.New(), uuid.New()
	require.NoError(t, flags.SetFlag(ctx, off.String(), webhooks.FeatureFlag, false))

	e := newEngine(t, flags)
	offEP := e.endpoint(t, off, erpURL, 3, webhooks.EventOrderCreated)
	e.endpoint(t, on, crmURL, 3, webhooks.EventOrderCreated)

	e.dispatcher.Dispatch(ctx, off, webhooks.EventOrderCreated, "1", "OrdemServico", nil)
	e.pool.drain(ctx)
	assert.Zero(t, e.client.total())
	assert.Empty(t, e.history(t, off, offEP.ID))

	e.dispatcher.Dispatch(ctx, on, webhooks.EventOrderCreated, "1", "OrdemServico", nil)
	e.pool.drain(ctx)
	assert.Len(t, e.client.calls(crmURL), 1, "missing flag means enabled")
}

type brokenFlags struct{ feature.Provider }

func (brokenFlags) IsEnabled(context.Context, string, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestDispatch_FlagProviderFailureFailsOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newEngine(t, brokenFlags{})
	tenant := uuid.New()
	e.endpoint(t, tenant, erpURL, 3, webhooks.EventOrderCreated)

	e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderCreated, "1", "OrdemServico", nil)
	e.pool.drain(ctx)
	assert.Len(t, e.client.calls(erpURL), 1)
}

func TestDispatch_QueueFullNeverBlocksProducer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newEngine(t, nil)
	tenant := uuid.New()
	e.endpoint(t, tenant, erpURL, 3, webhooks.EventOrderCreated)
	e.pool.reject = true

	assert.NotPanics(t, func() {
		e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderCreated, "1", "OrdemServico", nil)
	})
	assert.Zero(t, e.client.total())
}

func TestRetry_IdempotentPayloadAndSignature(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, nil)
	tenant := uuid.New()

	ep := e.endpoint(t, tenant, erpURL, 5, webhooks.EventOrderCreated)
	e.client.respond(erpURL, 503)

	e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderCreated, "42", "OrdemServico", map[string]any{"total": 199.9})
	e.pool.drain(ctx)

	e.tick(t, 30*time.Second)
	assert.Len(t, e.client.calls(erpURL), 1, "retry not due yet")

	for _, wait := range []time.Duration{30 * time.Second, 5 * time.Minute, 15 * time.Minute, 30 * time.Minute} {
		e.tick(t, wait)
	}

	calls := e.client.calls(erpURL)
	require.Len(t, calls, 5)
	for _, c := range calls[1:] {
		assert.Equal(t, calls[0].Payload, c.Payload)
		assert.Equal(t, webhook.Sign("s3cr3t", calls[0].Payload), webhook.Sign(c.Secret, c.Payload))
	}

	rows := e.history(t, tenant, ep.ID)
	require.Len(t, rows, 5)
	history, err := e.service.DeliveryHistory(ctx, tenant, rows[0].DeliveryID)
	require.NoError(t, err)

	want := []webhooks.Status{
		webhooks.StatusFailure, webhooks.StatusFailure, webhooks.StatusFailure,
		webhooks.StatusFailure, webhooks.StatusExhausted,
	}
	for i, a := range history {
		assert.Equal(t, i+1, a.AttemptNumber)
		assert.Equal(t, want[i], a.Status, "attempt %d", a.AttemptNumber)
		assert.Equal(t, erpURL, a.URL)
	}

	e.tick(t, 24*time.Hour)
	assert.Len(t, e.client.calls(erpURL), 5, "exhausted delivery is never retried")
}

func TestRetry_SucceedsAfterFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, nil)
	tenant := uuid.New()

	ep := e.endpoint(t, tenant, erpURL, 3, webhooks.EventOrderCreated)
	e.client.respond(erpURL, 0)
	e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderCreated, "1", "OrdemServico", nil)
	e.pool.drain(ctx)

	e.client.respond(erpURL, 200)
	e.tick(t, time.Minute)

	rows := e.history(t, tenant, ep.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, webhooks.StatusSuccess, rows[0].Status)
	assert.Equal(t, 2, rows[0].AttemptNumber)
	assert.Equal(t, webhooks.StatusFailure, rows[1].Status)
	assert.Nil(t, rows[1].StatusCode)

	got, err := e.store.GetEndpoint(ctx, tenant, ep.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ConsecutiveFailures)
	assert.NotNil(t, got.LastSuccessAt)
}

func TestRetry_UsesCurrentSecretAndCapturedURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, nil)
	tenant := uuid.New()

	ep := e.endpoint(t, tenant, erpURL, 3, webhooks.EventOrderCreated)
	e.client.respond(erpURL, 500)
	e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderCreated, "1", "OrdemServico", nil)
	e.pool.drain(ctx)

	_, err := e.service.UpdateEndpoint(ctx, tenant, ep.ID, webhooks.EndpointInput{
		Name: "ERP", URL: crmURL, Secret: "rotated", Events: []string{webhooks.EventOrderCreated},
	})
	require.NoError(t, err)

	e.tick(t, time.Minute)
	calls := e.client.calls(erpURL)
	require.Len(t, calls, 2)
	assert.Equal(t, "rotated", calls[1].Secret)
	assert.Empty(t, e.client.calls(crmURL))
}

func TestCircuitBreaker_DisablesAndSkips(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := webhooks.NewMetrics(reg, "test")
	e := newEngine(t, nil, webhooks.WithMetrics(metrics))
	tenant := uuid.New()

	ep := e.endpoint(t, tenant, erpURL, 1, webhooks.EventOrderCreated)
	e.client.respond(erpURL, 500)

	for range webhooks.FailureThreshold {
		e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderCreated, "1", "OrdemServico", nil)
	}
	e.pool.drain(ctx)

	got, err := e.store.GetEndpoint(ctx, tenant, ep.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, webhooks.FailureThreshold, got.ConsecutiveFailures)
	assert.Equal(t, []uuid.UUID{ep.ID}, e.notifier.disabled)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EndpointsDisabled))
	assert.Equal(t, float64(webhooks.FailureThreshold), testutil.ToFloat64(metrics.Attempts.WithLabelValues(string(webhooks.StatusExhausted))))

	before := e.client.total()
	e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderCreated, "1", "OrdemServico", nil)
	e.pool.drain(ctx)
	assert.Equal(t, before, e.client.total(), "disabled endpoint gets no new deliveries")

	_, err = e.service.ReactivateEndpoint(ctx, tenant, ep.ID)
	require.NoError(t, err)
	e.client.respond(erpURL, 200)
	e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderCreated, "1", "OrdemServico", nil)
	e.pool.drain(ctx)
	assert.Equal(t, before+1, e.client.total())
}

func TestRetry_DisabledEndpointAbandonsWithoutNetworkCall(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, nil)
	tenant := uuid.New()

	ep := e.endpoint(t, tenant, erpURL, 3, webhooks.EventOrderCreated)
	e.client.respond(erpURL, 500)
	e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderCreated, "1", "OrdemServico", nil)
	e.pool.drain(ctx)

	_, err := e.store.UpdateHealth(ctx, tenant, ep.ID, func(ep *webhooks.Endpoint) { ep.Active = false })
	require.NoError(t, err)

	e.tick(t, time.Minute)
	assert.Len(t, e.client.calls(erpURL), 1)

	rows := e.history(t, tenant, ep.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, webhooks.StatusAbandoned, rows[0].Status)
	assert.Equal(t, "endpoint disabled", rows[0].Error)
}

func TestRetry_RecoversStalePendingAttempt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, nil)
	tenant := uuid.New()

	ep := e.endpoint(t, tenant, erpURL, 3, webhooks.EventOrderCreated)
	e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderCreated, "1", "OrdemServico", nil)

	// Run only the fan-out job; the delivery job is lost as if the process died.
	e.pool.mu.Lock()
	fanOut := e.pool.jobs[0]
	e.pool.jobs = nil
	e.pool.mu.Unlock()
	fanOut(ctx)
	e.pool.mu.Lock()
	e.pool.jobs = nil
	e.pool.mu.Unlock()

	require.Equal(t, webhooks.StatusPending, e.history(t, tenant, ep.ID)[0].Status)

	e.tick(t, time.Minute)
	assert.Zero(t, e.client.total(), "lease still held")

	e.tick(t, 5*time.Minute)
	require.Len(t, e.client.calls(erpURL), 1)
	rows := e.history(t, tenant, ep.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, webhooks.StatusSuccess, rows[0].Status)
}

func TestRetry_QueuedDeliveryPastLeaseSendsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, nil)
	tenant := uuid.New()

	ep := e.endpoint(t, tenant, erpURL, 3, webhooks.EventOrderCreated)
	e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderCreated, "1", "OrdemServico", nil)

	// Run the fan-out job only; its delivery job stays queued behind a busy pool.
	e.pool.mu.Lock()
	fanOut := e.pool.jobs[0]
	e.pool.jobs = e.pool.jobs[1:]
	e.pool.mu.Unlock()
	fanOut(ctx)
	require.Len(t, e.pool.jobs, 1)

	e.tick(t, 6*time.Minute)

	calls := e.client.calls(erpURL)
	require.Len(t, calls, 1, "the reclaimed row is sent once")
	rows := e.history(t, tenant, ep.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, webhooks.StatusSuccess, rows[0].Status)
}

func TestRetry_LateQueuedDeliveryKeepsItsLease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, nil)
	tenant := uuid.New()

	ep := e.endpoint(t, tenant, erpURL, 3, webhooks.EventOrderCreated)
	e.client.respond(erpURL, 500)
	e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderCreated, "1", "OrdemServico", nil)

	e.pool.mu.Lock()
	fanOut := e.pool.jobs[0]
	e.pool.jobs = e.pool.jobs[1:]
	e.pool.mu.Unlock()
	fanOut(ctx)

	// The delivery job starts after its lease expired but before any
	// scheduler pass; it renews the lease and sends.
	e.clock.Advance(6 * time.Minute)
	e.pool.drain(ctx)
	require.Len(t, e.client.calls(erpURL), 1)

	e.tick(t, 0)
	assert.Len(t, e.client.calls(erpURL), 1)
	rows := e.history(t, tenant, ep.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, webhooks.StatusRetryScheduled, rows[0].Status)
}

func TestDispatch_SnapshotsDataAtCallTime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, nil)
	tenant := uuid.New()
	e.endpoint(t, tenant, erpURL, 3, webhooks.EventOrderStatusChanged)

	data := map[string]any{"status": "ABERTA"}
	e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderStatusChanged, "9", "OrdemServico", data)
	data["status"] = "FINALIZADA"
	e.pool.drain(ctx)

	calls := e.client.calls(erpURL)
	require.Len(t, calls, 1)
	var env struct {
		Dados map[string]any `json:"dados"`
	}
	require.NoError(t, json.Unmarshal(calls[0].Payload, &env))
	assert.Equal(t, "ABERTA", env.Dados["status"])
}

func TestDispatch_UnserializableDataIsDropped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, nil)
	tenant := uuid.New()
	ep := e.endpoint(t, tenant, erpURL, 3, webhooks.EventStockLow)

	e.dispatcher.Dispatch(ctx, tenant, webhooks.EventStockLow, "7", "Produto", map[string]any{"ch": make(chan int)})
	assert.Empty(t, e.pool.jobs, "nothing is queued")
	e.pool.drain(ctx)

	assert.Zero(t, e.client.total())
	assert.Empty(t, e.history(t, tenant, ep.ID))
}

func TestRetry_DeletedEndpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, nil)
	tenant := uuid.New()

	ep := e.endpoint(t, tenant, erpURL, 3, webhooks.EventOrderCreated)
	e.client.respond(erpURL, 500)
	e.dispatcher.Dispatch(ctx, tenant, webhooks.EventOrderCreated, "1", "OrdemServico", nil)
	e.pool.drain(ctx)
	deliveryID := e.history(t, tenant, ep.ID)[0].DeliveryID

	require.NoError(t, e.service.DeleteEndpoint(ctx, tenant, ep.ID))
	e.tick(t, time.Hour)

	assert.Len(t, e.client.calls(erpURL), 1)
	history, err := e.service.DeliveryHistory(ctx, tenant, deliveryID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, webhooks.StatusAbandoned, history[0].Status)
}
