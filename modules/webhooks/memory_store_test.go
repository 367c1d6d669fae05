package webhooks_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oficinapro/backend/modules/webhooks"
	"github.com/oficinapro/backend/pkg/webhook"
)

func seedAttempt(t *testing.T, store *webhooks.MemoryStore, now time.Time) (*webhooks.Endpoint, *webhooks.Attempt) {
	t.Helper()
	ep := &webhooks.Endpoint{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		URL:         "https://erp.example.com/" + uuid.NewString(),
		Events:      []string{webhooks.EventOrderCreated},
		MaxAttempts: 3,
		Active:      true,
		CreatedAt:   now,
	}
	require.NoError(t, store.CreateEndpoint(context.Background(), ep))

	env := webhooks.NewEnvelope(webhooks.EventOrderCreated, "1", "OrdemServico", nil, now)
	payload, err := env.Marshal()
	require.NoError(t, err)
	a := webhooks.NewAttempt(ep, env, payload, now, 5*time.Minute)
	require.NoError(t, store.CreateAttempt(context.Background(), a))
	return ep, a
}

func TestMemoryStore_DuplicateURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := webhooks.NewMemoryStore()

	tenant := uuid.New()
	ep := &webhooks.Endpoint{ID: uuid.New(), TenantID: tenant, URL: "https://a.example.com"}
	require.NoError(t, store.CreateEndpoint(ctx, ep))

	dup := &webhooks.Endpoint{ID: uuid.New(), TenantID: tenant, URL: "https://a.example.com"}
	assert.ErrorIs(t, store.CreateEndpoint(ctx, dup), webhooks.ErrDuplicateURL)

	other := &webhooks.Endpoint{ID: uuid.New(), TenantID: uuid.New(), URL: "https://a.example.com"}
	assert.NoError(t, store.CreateEndpoint(ctx, other), "same url in another tenant")
}

func TestMemoryStore_TenantIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := webhooks.NewMemoryStore()

	ep, _ := seedAttempt(t, store, time.Now())
	_, err := store.GetEndpoint(ctx, uuid.New(), ep.ID)
	assert.ErrorIs(t, err, webhooks.ErrEndpointNotFound)
	assert.ErrorIs(t, store.DeleteEndpoint(ctx, uuid.New(), ep.ID), webhooks.ErrEndpointNotFound)
}

func TestMemoryStore_UpdateKeepsHealth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := webhooks.NewMemoryStore()
	now := time.Now()

	ep, _ := seedAttempt(t, store, now)
	_, err := store.UpdateHealth(ctx, ep.TenantID, ep.ID, func(e *webhooks.Endpoint) { e.RegisterFailure(now) })
	require.NoError(t, err)

	ep.Name = "renamed"
	ep.ConsecutiveFailures = 0
	require.NoError(t, store.UpdateEndpoint(ctx, ep))

	got, err := store.GetEndpoint(ctx, ep.TenantID, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, 1, got.ConsecutiveFailures)
}

func TestMemoryStore_SaveAttemptIsCompareAndSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := webhooks.NewMemoryStore()
	now := time.Now()

	_, a := seedAttempt(t, store, now)
	first := a.Clone()
	second := a.Clone()

	require.NoError(t, first.Settle(webhook.Outcome{StatusCode: 200}, 3, webhook.DefaultSchedule, now))
	require.NoError(t, store.SaveAttempt(ctx, &first, webhooks.StatusPending))

	require.NoError(t, second.Settle(webhook.Outcome{StatusCode: 500, Err: webhook.ErrUnexpectedStatus}, 3, webhook.DefaultSchedule, now))
	assert.ErrorIs(t, store.SaveAttempt(ctx, &second, webhooks.StatusPending), webhooks.ErrAttemptConflict)

	missing := a.Clone()
	missing.ID = uuid.New()
	assert.ErrorIs(t, store.SaveAttempt(ctx, &missing, webhooks.StatusPending), webhooks.ErrAttemptNotFound)
}

func TestMemoryStore_ClaimDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := webhooks.NewMemoryStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	lease := 5 * time.Minute

	_, inFlight := seedAttempt(t, store, now)
	_, scheduled := seedAttempt(t, store, now)

	require.NoError(t, scheduled.Settle(webhook.Outcome{StatusCode: 500, Err: webhook.ErrUnexpectedStatus}, 3, webhook.DefaultSchedule, now))
	require.NoError(t, store.SaveAttempt(ctx, scheduled, webhooks.StatusPending))

	claimed, err := store.ClaimDue(ctx, now.Add(30*time.Second), 10, lease)
	require.NoError(t, err)
	assert.Empty(t, claimed, "retry not due and pending lease still held")

	claimed, err = store.ClaimDue(ctx, now.Add(time.Minute), 10, lease)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, scheduled.ID, claimed[0].ID)
	assert.Equal(t, now.Add(time.Minute+lease), *claimed[0].LockedUntil)

	claimed, err = store.ClaimDue(ctx, now.Add(2*time.Minute), 10, lease)
	require.NoError(t, err)
	assert.Empty(t, claimed, "leased row is not handed out twice")

	claimed, err = store.ClaimDue(ctx, now.Add(lease), 10, lease)
	require.NoError(t, err)
	require.Len(t, claimed, 1, "expired pending lease is recovered")
	assert.Equal(t, inFlight.ID, claimed[0].ID)
	assert.Equal(t, webhooks.StatusPending, claimed[0].Status)
}

func TestMemoryStore_ClaimDueRespectsLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := webhooks.NewMemoryStore()
	now := time.Now()

	for range 5 {
		seedAttempt(t, store, now)
	}
	claimed, err := store.ClaimDue(ctx, now.Add(time.Hour), 2, 5*time.Minute)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
}

func TestMemoryStore_DeleteAbandonsOpenAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := webhooks.NewMemoryStore()
	now := time.Now()

	ep, a := seedAttempt(t, store, now)
	require.NoError(t, store.DeleteEndpoint(ctx, ep.TenantID, ep.ID))

	history, err := store.DeliveryHistory(ctx, ep.TenantID, a.DeliveryID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, webhooks.StatusAbandoned, history[0].Status)
	assert.Equal(t, "endpoint deleted", history[0].Error)

	claimed, err := store.ClaimDue(ctx, now.Add(time.Hour), 10, 5*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestMemoryStore_PurgeKeepsOpenRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := webhooks.NewMemoryStore()
	old := time.Now().Add(-100 * 24 * time.Hour)

	ep, done := seedAttempt(t, store, old)
	require.NoError(t, done.Settle(webhook.Outcome{StatusCode: 200}, 3, webhook.DefaultSchedule, old))
	require.NoError(t, store.SaveAttempt(ctx, done, webhooks.StatusPending))
	_, open := seedAttempt(t, store, old)

	n, err := store.PurgeAttempts(ctx, time.Now().Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	remaining, err := store.ListAttempts(ctx, ep.TenantID, ep.ID, webhooks.AttemptFilter{})
	require.NoError(t, err)
	assert.Empty(t, remaining)

	history, err := store.DeliveryHistory(ctx, open.TenantID, open.DeliveryID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestMemoryStore_RenewLease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := webhooks.NewMemoryStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	lease := 5 * time.Minute

	_, a := seedAttempt(t, store, now)
	stale := a.Clone()

	renewed := webhooks.LeaseUntil(now.Add(time.Minute), lease)
	require.NoError(t, store.RenewLease(ctx, a, renewed))
	assert.Equal(t, renewed, *a.LockedUntil)

	assert.ErrorIs(t, store.RenewLease(ctx, &stale, renewed.Add(time.Minute)), webhooks.ErrLeaseLost,
		"holder of the old lease cannot take it back")

	claimed, err := store.ClaimDue(ctx, renewed, 10, lease)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.ErrorIs(t, store.RenewLease(ctx, a, renewed.Add(time.Minute)), webhooks.ErrLeaseLost,
		"expired lease reclaimed by the scheduler")
	require.NoError(t, store.RenewLease(ctx, &claimed[0], renewed.Add(time.Minute)))

	require.NoError(t, claimed[0].Settle(webhook.Outcome{StatusCode: 200}, 3, webhook.DefaultSchedule, now))
	require.NoError(t, store.SaveAttempt(ctx, &claimed[0], webhooks.StatusPending))
	settled := claimed[0].Clone()
	assert.ErrorIs(t, store.RenewLease(ctx, &settled, renewed), webhooks.ErrLeaseLost, "settled rows cannot be leased")
}

func TestMemoryStore_ConcurrentHealthUpdates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := webhooks.NewMemoryStore()
	now := time.Now()
	ep, _ := seedAttempt(t, store, now)

	const workers = 3 * webhooks.FailureThreshold
	var (
		wg       sync.WaitGroup
		disabled atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdateHealth(ctx, ep.TenantID, ep.ID, func(e *webhooks.Endpoint) {
				if e.RegisterFailure(now) {
					disabled.Add(1)
				}
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.GetEndpoint(ctx, ep.TenantID, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.ConsecutiveFailures)
	assert.False(t, got.Active)
	assert.Equal(t, int32(1), disabled.Load(), "disable fires once")
}

func TestMemoryStore_DeleteUsesStoreClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	deletedAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := webhooks.NewMemoryStore(webhooks.WithStoreClock(func() time.Time { return deletedAt }))

	ep, a := seedAttempt(t, store, deletedAt.Add(-time.Hour))
	require.NoError(t, store.DeleteEndpoint(ctx, ep.TenantID, ep.ID))

	history, err := store.DeliveryHistory(ctx, ep.TenantID, a.DeliveryID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, deletedAt, history[0].UpdatedAt)

	n, err := store.PurgeAttempts(ctx, deletedAt)
	require.NoError(t, err)
	assert.Zero(t, n, "abandoned exactly at the cutoff is kept")

	n, err = store.PurgeAttempts(ctx, deletedAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
