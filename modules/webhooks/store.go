package webhooks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EndpointStore persists endpoint configuration and health.
type EndpointStore interface {
	// CreateEndpoint returns ErrDuplicateURL when the tenant already has
	// an endpoint with the same URL.
	CreateEndpoint(ctx context.Context, ep *Endpoint) error

	// UpdateEndpoint replaces configuration fields. Health fields are left
	// untouched.
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error

	GetEndpoint(ctx context.Context, tenantID, id uuid.UUID) (*Endpoint, error)
	ListEndpoints(ctx context.Context, tenantID uuid.UUID) ([]Endpoint, error)

	// ListSubscribed returns active endpoints subscribed to eventType.
	ListSubscribed(ctx context.Context, tenantID uuid.UUID, eventType string) ([]Endpoint, error)

	// DeleteEndpoint removes the endpoint and abandons its open attempts.
	// Attempt history is kept.
	DeleteEndpoint(ctx context.Context, tenantID, id uuid.UUID) error

	// UpdateHealth applies fn to the current endpoint atomically and
	// persists the health fields it changed.
	UpdateHealth(ctx context.Context, tenantID, id uuid.UUID, fn func(*Endpoint)) (*Endpoint, error)
}

// AttemptFilter narrows ListAttempts. Results are newest first.
type AttemptFilter struct {
	Status Status
	Limit  int
	Offset int
}

// AttemptStore persists delivery attempts.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, a *Attempt) error

	// SaveAttempt persists a's mutable fields if the stored status still
	// equals from, otherwise it returns ErrAttemptConflict.
	SaveAttempt(ctx context.Context, a *Attempt, from Status) error

	// RenewLease moves the lease of a PENDING row to until, provided the
	// row is still held under a.LockedUntil. Otherwise another worker owns
	// the row and ErrLeaseLost is returned. On success a.LockedUntil is
	// updated.
	RenewLease(ctx context.Context, a *Attempt, until time.Time) error

	// SupersedeAttempt atomically saves prev (moved out of
	// RETRY_SCHEDULED) and inserts next.
	SupersedeAttempt(ctx context.Context, prev, next *Attempt) error

	// ClaimDue leases up to limit rows that are due: scheduled retries
	// whose time has come and pending rows whose lease expired. A leased
	// row is not returned again until now+lease.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Attempt, error)

	ListAttempts(ctx context.Context, tenantID, endpointID uuid.UUID, filter AttemptFilter) ([]Attempt, error)
	DeliveryHistory(ctx context.Context, tenantID, deliveryID uuid.UUID) ([]Attempt, error)

	// PurgeAttempts deletes settled rows last updated before cutoff.
	PurgeAttempts(ctx context.Context, cutoff time.Time) (int64, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (f AttemptFilter) normalized() AttemptFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	f.Limit = min(f.Limit, maxListLimit)
	f.Offset = max(f.Offset, 0)
	return f
}
