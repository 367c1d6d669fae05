package webhooks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oficinapro/backend/pkg/logger"
	"github.com/oficinapro/backend/pkg/validator"
	"github.com/oficinapro/backend/pkg/webhook"
)

const (
	maxNameLength        = 120
	maxDescriptionLength = 500
	maxCustomHeaders     = 20
)

// EndpointInput is the writable part of an endpoint. On update an empty
// Secret keeps the stored one unless ClearSecret is set.
type EndpointInput struct {
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	URL            string            `json:"url"`
	Secret         string            `json:"secret,omitempty"`
	GenerateSecret bool              `json:"generate_secret,omitempty"`
	ClearSecret    bool              `json:"clear_secret,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Events         []string          `json:"events"`
	MaxAttempts    int               `json:"max_attempts,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// Service exposes the administrative operations on endpoints and their
// delivery log.
type Service struct {
	endpoints EndpointStore
	attempts  AttemptStore
	client    DeliveryClient
	opts      *options
	log       *slog.Logger
}

func NewService(endpoints EndpointStore, attempts AttemptStore, client DeliveryClient, opts ...Option) *Service {
	o := newOptions(opts)
	return &Service{
		endpoints: endpoints,
		attempts:  attempts,
		client:    client,
		opts:      o,
		log:       o.logger.With(logger.Component("webhook-admin")),
	}
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r <= ' ' || r >= 0x7f || strings.ContainsRune(`:()<>@,;\"/[]?={}`, r) {
			return false
		}
	}
	return true
}

func (s *Service) validate(in *EndpointInput) ([]string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.URL = strings.TrimSpace(in.URL)
	if in.MaxAttempts == 0 {
		in.MaxAttempts = DefaultMaxAttempts
	}
	if in.TimeoutSeconds == 0 {
		in.TimeoutSeconds = int(DefaultTimeout / time.Second)
	}

	events, eventsErr := NormalizeEvents(in.Events)
	urlErr := webhook.ValidateURL(in.URL, s.opts.allowInsecure)

	headersOK := true
	for name := range in.Headers {
		if !validHeaderName(name) {
			headersOK = false
		}
	}

	err := validator.Apply(
		validator.Required("name", in.Name),
		validator.MaxLen("name", in.Name, maxNameLength),
		validator.MaxLen("description", in.Description, maxDescriptionLength),
		validator.Check("url", urlErr == nil, fmt.Sprint(urlErr)),
		validator.Check("events", eventsErr == nil, fmt.Sprint(eventsErr)),
		validator.Between("max_attempts", in.MaxAttempts, 1, MaxMaxAttempts),
		validator.Between("timeout_seconds", in.TimeoutSeconds, int(MinTimeout/time.Second), int(MaxTimeout/time.Second)),
		validator.MaxLenMap("headers", in.Headers, maxCustomHeaders),
		validator.Check("headers", headersOK, "header names must be valid HTTP tokens"),
		validator.Check("secret", !(in.GenerateSecret && in.ClearSecret), "generate_secret and clear_secret are exclusive"),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidEndpoint, err)
	}
	return events, nil
}

// GenerateSecret returns 32 random bytes hex encoded.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *Service) applySecret(ep *Endpoint, in EndpointInput) error {
	switch {
	case in.GenerateSecret:
		secret, err := GenerateSecret()
		if err != nil {
			return err
		}
		ep.Secret = secret
	case in.ClearSecret:
		ep.Secret = ""
	case in.Secret != "":
		ep.Secret = in.Secret
	}
	return nil
}

// CreateEndpoint registers a new active endpoint.
func (s *Service) CreateEndpoint(ctx context.Context, tenantID uuid.UUID, in EndpointInput) (*Endpoint, error) {
	events, err := s.validate(&in)
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	ep := &Endpoint{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        in.Name,
		Description: in.Description,
		URL:         in.URL,
		Headers:     in.Headers,
		Events:      events,
		MaxAttempts: in.MaxAttempts,
		Timeout:     time.Duration(in.TimeoutSeconds) * time.Second,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.applySecret(ep, in); err != nil {
		return nil, err
	}
	if err := s.endpoints.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "webhook endpoint created",
		logger.TenantID(tenantID),
		logger.EndpointID(ep.ID),
		slog.Any("events", ep.Events))
	return ep, nil
}

// UpdateEndpoint replaces the configuration. Health is not affected; use
// ReactivateEndpoint for that.
func (s *Service) UpdateEndpoint(ctx context.Context, tenantID, id uuid.UUID, in EndpointInput) (*Endpoint, error) {
	events, err := s.validate(&in)
	if err != nil {
		return nil, err
	}
	ep, err := s.endpoints.GetEndpoint(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	ep.Name = in.Name
	ep.Description = in.Description
	ep.URL = in.URL
	ep.Headers = in.Headers
	ep.Events = events
	ep.MaxAttempts = in.MaxAttempts
	ep.Timeout = time.Duration(in.TimeoutSeconds) * time.Second
	ep.UpdatedAt = s.opts.now()
	if err := s.applySecret(ep, in); err != nil {
		return nil, err
	}
	if err := s.endpoints.UpdateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "webhook endpoint updated",
		logger.TenantID(tenantID),
		logger.EndpointID(ep.ID))
	return ep, nil
}

// DeleteEndpoint removes the endpoint. Pending retries are abandoned and
// the attempt history stays queryable through DeliveryHistory.
func (s *Service) DeleteEndpoint(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.endpoints.DeleteEndpoint(ctx, tenantID, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "webhook endpoint deleted",
		logger.TenantID(tenantID),
		logger.EndpointID(id))
	return nil
}

// ReactivateEndpoint turns a disabled endpoint back on with a clean failure
// streak.
func (s *Service) ReactivateEndpoint(ctx context.Context, tenantID, id uuid.UUID) (*Endpoint, error) {
	now := s.opts.now()
	ep, err := s.endpoints.UpdateHealth(ctx, tenantID, id, func(e *Endpoint) {
		e.Reactivate(now)
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "webhook endpoint reactivated",
		logger.TenantID(tenantID),
		logger.EndpointID(id))
	return ep, nil
}

func (s *Service) GetEndpoint(ctx context.Context, tenantID, id uuid.UUID) (*Endpoint, error) {
	return s.endpoints.GetEndpoint(ctx, tenantID, id)
}

func (s *Service) ListEndpoints(ctx context.Context, tenantID uuid.UUID) ([]Endpoint, error) {
	return s.endpoints.ListEndpoints(ctx, tenantID)
}

// ListAttempts returns an endpoint's attempts, newest first.
func (s *Service) ListAttempts(ctx context.Context, tenantID, endpointID uuid.UUID, filter AttemptFilter) ([]Attempt, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, filter.Status)
	}
	if _, err := s.endpoints.GetEndpoint(ctx, tenantID, endpointID); err != nil {
		return nil, err
	}
	return s.attempts.ListAttempts(ctx, tenantID, endpointID, filter)
}

// DeliveryHistory returns every attempt of one logical delivery in order.
func (s *Service) DeliveryHistory(ctx context.Context, tenantID, deliveryID uuid.UUID) ([]Attempt, error) {
	history, err := s.attempts.DeliveryHistory(ctx, tenantID, deliveryID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, ErrAttemptNotFound
	}
	return history, nil
}

// TestEnvelope builds the synthetic payload sent by SendTest.
func TestEnvelope(ep *Endpoint, at time.Time) Envelope {
	env := NewEnvelope(EventTest, uuid.NewString(), "Teste", map[string]any{
		"mensagem":   "Este é um evento de teste do webhook.",
		"endpointId": ep.ID.String(),
	}, at)
	env.Test = true
	return env
}

// SendTest performs one synchronous signed delivery of a test envelope. It
// writes no attempt row and leaves the endpoint's health untouched, so it
// also works on a disabled endpoint.
func (s *Service) SendTest(ctx context.Context, tenantID, id uuid.UUID) (webhook.Outcome, error) {
	ep, err := s.endpoints.GetEndpoint(ctx, tenantID, id)
	if err != nil {
		return webhook.Outcome{}, err
	}
	payload, err := TestEnvelope(ep, s.opts.now()).Marshal()
	if err != nil {
		return webhook.Outcome{}, err
	}

	out := s.client.Deliver(ctx, request(ep, ep.URL, payload))
	s.log.InfoContext(ctx, "webhook test delivery",
		logger.TenantID(tenantID),
		logger.EndpointID(id),
		logger.StatusCode(out.StatusCode),
		logger.Duration(out.Latency),
		slog.Bool("success", out.Succeeded()))
	return out, nil
}

// EventCatalog lists the events endpoints can subscribe to.
func (s *Service) EventCatalog() []EventInfo {
	return Catalog()
}

// PurgeExpired deletes settled attempts older than the retention window.
func (s *Service) PurgeExpired(ctx context.Context) error {
	if s.opts.retention == 0 {
		return nil
	}
	n, err := s.attempts.PurgeAttempts(ctx, s.opts.now().Add(-s.opts.retention))
	if err != nil {
		return err
	}
	s.opts.metrics.purged(n)
	if n > 0 {
		s.log.InfoContext(ctx, "purged webhook attempts", slog.Int64("count", n))
	}
	return nil
}
