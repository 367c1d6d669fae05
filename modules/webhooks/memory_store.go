package webhooks

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements EndpointStore and AttemptStore in process. Values
// are copied in and out so callers never share state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	endpoints map[uuid.UUID]Endpoint
	attempts  map[uuid.UUID]Attempt
	now       func() time.Time
}

type MemoryStoreOption func(*MemoryStore)

// WithStoreClock sets the clock used for timestamps the store writes itself,
// such as rows abandoned by DeleteEndpoint.
func WithStoreClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		endpoints: make(map[uuid.UUID]Endpoint),
		attempts:  make(map[uuid.UUID]Attempt),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) urlTaken(tenantID, exceptID uuid.UUID, url string) bool {
	for _, ep := range s.endpoints {
		if ep.TenantID == tenantID && ep.ID != exceptID && ep.URL == url {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateEndpoint(_ context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.urlTaken(ep.TenantID, ep.ID, ep.URL) {
		return ErrDuplicateURL
	}
	s.endpoints[ep.ID] = ep.Clone()
	return nil
}

func (s *MemoryStore) UpdateEndpoint(_ context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.endpoints[ep.ID]
	if !ok || cur.TenantID != ep.TenantID {
		return ErrEndpointNotFound
	}
	if s.urlTaken(ep.TenantID, ep.ID, ep.URL) {
		return ErrDuplicateURL
	}

	next := ep.Clone()
	next.Active = cur.Active
	next.ConsecutiveFailures = cur.ConsecutiveFailures
	next.LastSuccessAt = cur.LastSuccessAt
	next.LastFailureAt = cur.LastFailureAt
	next.CreatedAt = cur.CreatedAt
	s.endpoints[ep.ID] = next
	return nil
}

func (s *MemoryStore) GetEndpoint(_ context.Context, tenantID, id uuid.UUID) (*Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.endpoints[id]
	if !ok || ep.TenantID != tenantID {
		return nil, ErrEndpointNotFound
	}
	out := ep.Clone()
	return &out, nil
}

func (s *MemoryStore) ListEndpoints(_ context.Context, tenantID uuid.UUID) ([]Endpoint, error) {
	return s.listEndpoints(func(ep *Endpoint) bool { return ep.TenantID == tenantID }), nil
}

func (s *MemoryStore) ListSubscribed(_ context.Context, tenantID uuid.UUID, eventType string) ([]Endpoint, error) {
	return s.listEndpoints(func(ep *Endpoint) bool {
		return ep.TenantID == tenantID && ep.Matches(eventType)
	}), nil
}

func (s *MemoryStore) listEndpoints(keep func(*Endpoint) bool) []Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Endpoint, 0)
	for _, ep := range s.endpoints {
		if keep(&ep) {
			out = append(out, ep.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Endpoint) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return out
}

func (s *MemoryStore) DeleteEndpoint(_ context.Context, tenantID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[id]
	if !ok || ep.TenantID != tenantID {
		return ErrEndpointNotFound
	}
	delete(s.endpoints, id)

	now := s.now()
	for attemptID, a := range s.attempts {
		if a.EndpointID != id || a.Status.Terminal() || a.Status == StatusFailure {
			continue
		}
		if err := a.Abandon("endpoint deleted", now); err == nil {
			s.attempts[attemptID] = a
		}
	}
	return nil
}

func (s *MemoryStore) UpdateHealth(_ context.Context, tenantID, id uuid.UUID, fn func(*Endpoint)) (*Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[id]
	if !ok || ep.TenantID != tenantID {
		return nil, ErrEndpointNotFound
	}
	ep = ep.Clone()
	fn(&ep)
	s.endpoints[id] = ep

	out := ep.Clone()
	return &out, nil
}

func (s *MemoryStore) CreateAttempt(_ context.Context, a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) SaveAttempt(_ context.Context, a *Attempt, from Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLocked(a, from)
}

func (s *MemoryStore) saveLocked(a *Attempt, from Status) error {
	cur, ok := s.attempts[a.ID]
	if !ok {
		return ErrAttemptNotFound
	}
	if cur.Status != from {
		return ErrAttemptConflict
	}
	s.attempts[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) RenewLease(_ context.Context, a *Attempt, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.attempts[a.ID]
	if !ok {
		return ErrAttemptNotFound
	}
	if cur.Status != StatusPending || !sameLease(cur.LockedUntil, a.LockedUntil) {
		return ErrLeaseLost
	}
	cur.LockedUntil = &until
	s.attempts[a.ID] = cur
	a.LockedUntil = &until
	return nil
}

func sameLease(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (s *MemoryStore) SupersedeAttempt(_ context.Context, prev, next *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveLocked(prev, StatusRetryScheduled); err != nil {
		return err
	}
	s.attempts[next.ID] = next.Clone()
	return nil
}

func (s *MemoryStore) ClaimDue(_ context.Context, now time.Time, limit int, lease time.Duration) ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]Attempt, 0)
	for _, a := range s.attempts {
		if isDue(&a, now) {
			due = append(due, a)
		}
	}
	slices.SortFunc(due, func(a, b Attempt) int { return dueAt(&a).Compare(dueAt(&b)) })
	if len(due) > limit {
		due = due[:limit]
	}

	lockedUntil := LeaseUntil(now, lease)
	out := make([]Attempt, 0, len(due))
	for _, a := range due {
		a.LockedUntil = &lockedUntil
		a.UpdatedAt = now
		s.attempts[a.ID] = a.Clone()
		out = append(out, a.Clone())
	}
	return out, nil
}

func isDue(a *Attempt, now time.Time) bool {
	leaseFree := a.LockedUntil == nil || !a.LockedUntil.After(now)
	switch a.Status {
	case StatusRetryScheduled:
		return a.NextRetryAt != nil && !a.NextRetryAt.After(now) && leaseFree
	case StatusPending:
		return a.LockedUntil != nil && leaseFree
	}
	return false
}

func dueAt(a *Attempt) time.Time {
	if a.NextRetryAt != nil {
		return *a.NextRetryAt
	}
	if a.LockedUntil != nil {
		return *a.LockedUntil
	}
	return a.CreatedAt
}

func (s *MemoryStore) ListAttempts(_ context.Context, tenantID, endpointID uuid.UUID, filter AttemptFilter) ([]Attempt, error) {
	filter = filter.normalized()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Attempt, 0)
	for _, a := range s.attempts {
		if a.TenantID != tenantID || a.EndpointID != endpointID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, a.Clone())
	}
	slices.SortFunc(out, func(a, b Attempt) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.AttemptNumber, a.AttemptNumber))
	})

	if filter.Offset >= len(out) {
		return []Attempt{}, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeliveryHistory(_ context.Context, tenantID, deliveryID uuid.UUID) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Attempt, 0)
	for _, a := range s.attempts {
		if a.TenantID == tenantID && a.DeliveryID == deliveryID {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Attempt) int { return cmp.Compare(a.AttemptNumber, b.AttemptNumber) })
	return out, nil
}

func (s *MemoryStore) PurgeAttempts(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, a := range s.attempts {
		if settled(a.Status) && a.UpdatedAt.Before(cutoff) {
			delete(s.attempts, id)
			n++
		}
	}
	return n, nil
}

// settled rows will never be touched by the engine again.
func settled(s Status) bool {
	return s.Terminal() || s == StatusFailure
}
