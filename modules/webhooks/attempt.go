package webhooks

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/oficinapro/backend/pkg/webhook"
)

// Status is the lifecycle state of one attempt row.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusSuccess        Status = "SUCCESS"
	StatusFailure        Status = "FAILURE"
	StatusRetryScheduled Status = "RETRY_SCHEDULED"
	StatusExhausted      Status = "ATTEMPTS_EXHAUSTED"
	StatusAbandoned      Status = "ABANDONED"
)

var transitions = map[Status][]Status{
	StatusPending:        {StatusSuccess, StatusFailure, StatusAbandoned},
	StatusFailure:        {StatusRetryScheduled, StatusExhausted},
	StatusRetryScheduled: {StatusSuccess, StatusFailure, StatusAbandoned},
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusExhausted || s == StatusAbandoned
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailure, StatusRetryScheduled, StatusExhausted, StatusAbandoned:
		return true
	}
	return false
}

// Transition validates the move from -> to.
func Transition(from, to Status) error {
	if slices.Contains(transitions[from], to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Attempt is one HTTP delivery attempt. Attempts of the same logical
// delivery share DeliveryID and are ordered by AttemptNumber.
type Attempt struct {
	ID            uuid.UUID       `json:"id"`
	DeliveryID    uuid.UUID       `json:"delivery_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	EndpointID    uuid.UUID       `json:"endpoint_id"`
	EventType     string          `json:"event_type"`
	EntityID      string          `json:"entity_id"`
	EntityType    string          `json:"entity_type"`
	URL           string          `json:"url"`
	Payload       json.RawMessage `json:"payload"`
	AttemptNumber int             `json:"attempt_number"`
	Status        Status          `json:"status"`

	StatusCode   *int   `json:"status_code,omitempty"`
	ResponseBody string `json:"response_body,omitempty"`
	Error        string `json:"error,omitempty"`
	LatencyMs    int64  `json:"latency_ms"`

	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	LockedUntil *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LeaseUntil returns the expiry of a lease taken at now. It is truncated to
// the microsecond precision Postgres stores, so leases compare equal after a
// round trip.
func LeaseUntil(now time.Time, lease time.Duration) time.Time {
	return now.Add(lease).Truncate(time.Microsecond)
}

// NewAttempt creates the first, leased attempt of a delivery.
func NewAttempt(ep *Endpoint, env Envelope, payload []byte, now time.Time, lease time.Duration) *Attempt {
	lockedUntil := LeaseUntil(now, lease)
	return &Attempt{
		ID:            uuid.New(),
		DeliveryID:    uuid.New(),
		TenantID:      ep.TenantID,
		EndpointID:    ep.ID,
		EventType:     env.Event,
		EntityID:      env.EntityID,
		EntityType:    env.EntityType,
		URL:           ep.URL,
		Payload:       payload,
		AttemptNumber: 1,
		Status:        StatusPending,
		LockedUntil:   &lockedUntil,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Next returns the leased follow-up of a scheduled retry. URL and payload are
// carried over unchanged.
func (a *Attempt) Next(now time.Time, lease time.Duration) *Attempt {
	lockedUntil := LeaseUntil(now, lease)
	return &Attempt{
		ID:            uuid.New(),
		DeliveryID:    a.DeliveryID,
		TenantID:      a.TenantID,
		EndpointID:    a.EndpointID,
		EventType:     a.EventType,
		EntityID:      a.EntityID,
		EntityType:    a.EntityType,
		URL:           a.URL,
		Payload:       a.Payload,
		AttemptNumber: a.AttemptNumber + 1,
		Status:        StatusPending,
		LockedUntil:   &lockedUntil,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (a *Attempt) moveTo(to Status, now time.Time) error {
	if err := Transition(a.Status, to); err != nil {
		return err
	}
	a.Status = to
	a.UpdatedAt = now
	return nil
}

// Settle records the outcome and moves the row to SUCCESS,
// RETRY_SCHEDULED or ATTEMPTS_EXHAUSTED.
func (a *Attempt) Settle(out webhook.Outcome, maxAttempts int, backoff webhook.Backoff, now time.Time) error {
	a.StatusCode = nil
	if out.StatusCode != 0 {
		code := out.StatusCode
		a.StatusCode = &code
	}
	a.ResponseBody = out.Body
	a.Error = out.Error()
	a.LatencyMs = out.Latency.Milliseconds()
	a.LockedUntil = nil
	a.NextRetryAt = nil

	if out.Succeeded() {
		return a.moveTo(StatusSuccess, now)
	}
	if err := a.moveTo(StatusFailure, now); err != nil {
		return err
	}
	if a.AttemptNumber >= maxAttempts {
		return a.moveTo(StatusExhausted, now)
	}
	next := now.Add(backoff.Delay(a.AttemptNumber))
	a.NextRetryAt = &next
	return a.moveTo(StatusRetryScheduled, now)
}

// Supersede settles a claimed retry whose follow-up attempt is about to run.
func (a *Attempt) Supersede(now time.Time) error {
	a.NextRetryAt = nil
	a.LockedUntil = nil
	return a.moveTo(StatusFailure, now)
}

// Abandon terminates a row whose endpoint is gone or disabled.
func (a *Attempt) Abandon(reason string, now time.Time) error {
	a.NextRetryAt = nil
	a.LockedUntil = nil
	a.Error = reason
	return a.moveTo(StatusAbandoned, now)
}

// Clone returns a deep copy.
func (a Attempt) Clone() Attempt {
	a.Payload = slices.Clone(a.Payload)
	if a.StatusCode != nil {
		c := *a.StatusCode
		a.StatusCode = &c
	}
	if a.NextRetryAt != nil {
		t := *a.NextRetryAt
		a.NextRetryAt = &t
	}
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		a.LockedUntil = &t
	}
	return a
}
