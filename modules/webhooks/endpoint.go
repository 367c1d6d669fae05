package webhooks

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxAttempts = 3
	MaxMaxAttempts     = 10
	DefaultTimeout     = 30 * time.Second
	MinTimeout         = time.Second
	MaxTimeout         = 120 * time.Second

	// FailureThreshold consecutive failures disable an endpoint.
	FailureThreshold = 10
)

// Endpoint is a tenant's subscription to a set of events at one URL.
type Endpoint struct {
	ID          uuid.UUID         `json:"id"`
	TenantID    uuid.UUID         `json:"tenant_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	URL         string            `json:"url"`
	Secret      string            `json:"-"`
	Headers     map[string]string `json:"headers,omitempty"`
	Events      []string          `json:"events"`
	MaxAttempts int               `json:"max_attempts"`
	Timeout     time.Duration     `json:"-"`

	Active              bool       `json:"active"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscribed reports whether the endpoint listens for event.
func (e *Endpoint) Subscribed(event string) bool {
	return slices.Contains(e.Events, event)
}

// Matches reports whether a new event should be sent to this endpoint.
func (e *Endpoint) Matches(event string) bool {
	return e.Active && e.Subscribed(event)
}

// RegisterSuccess resets the failure streak. It does not reactivate a
// disabled endpoint.
func (e *Endpoint) RegisterSuccess(at time.Time) {
	e.ConsecutiveFailures = 0
	e.LastSuccessAt = &at
	e.UpdatedAt = at
}

// RegisterFailure extends the failure streak and reports whether this call
// disabled the endpoint.
func (e *Endpoint) RegisterFailure(at time.Time) (disabled bool) {
	e.ConsecutiveFailures++
	e.LastFailureAt = &at
	e.UpdatedAt = at
	if e.Active && e.ConsecutiveFailures >= FailureThreshold {
		e.Active = false
		return true
	}
	return false
}

// Reactivate re-enables the endpoint with a clean failure streak.
func (e *Endpoint) Reactivate(at time.Time) {
	e.Active = true
	e.ConsecutiveFailures = 0
	e.UpdatedAt = at
}

// HasSecret reports whether deliveries are signed.
func (e *Endpoint) HasSecret() bool {
	return e.Secret != ""
}

// Clone returns a deep copy.
func (e Endpoint) Clone() Endpoint {
	e.Headers = maps.Clone(e.Headers)
	e.Events = slices.Clone(e.Events)
	if e.LastSuccessAt != nil {
		t := *e.LastSuccessAt
		e.LastSuccessAt = &t
	}
	if e.LastFailureAt != nil {
		t := *e.LastFailureAt
		e.LastFailureAt = &t
	}
	return e
}
