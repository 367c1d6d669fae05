package webhooks_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/oficinapro/backend/modules/webhooks"
	"github.com/oficinapro/backend/pkg/feature"
	"github.com/oficinapro/backend/pkg/queue"
	"github.com/oficinapro/backend/pkg/webhook"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// manualPool queues jobs until drain runs them, including jobs submitted by
// other jobs.
type manualPool struct {
	mu     sync.Mutex
	jobs   []queue.Job
	reject bool
}

func (p *manualPool) Submit(job queue.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return queue.ErrPoolFull
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *manualPool) drain(ctx context.Context) {
	for {
		p.mu.Lock()
		if len(p.jobs) == 0 {
			p.mu.Unlock()
			return
		}
		job := p.jobs[0]
		p.jobs = p.jobs[1:]
		p.mu.Unlock()
		job(ctx)
	}
}

// fakeClient answers with status, or with a transport error when status is 0.
type fakeClient struct {
	mu       sync.Mutex
	requests []webhook.Request
	status   map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{status: make(map[string]int)}
}

func (c *fakeClient) respond(url string, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[url] = status
}

func (c *fakeClient) Deliver(_ context.Context, req webhook.Request) webhook.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)

	code, ok := c.status[req.URL]
	if !ok {
		code = 200
	}
	if code == 0 {
		return webhook.Outcome{Err: errors.Join(webhook.ErrTransport, errors.New("connection refused")), Latency: time.Millisecond}
	}
	out := webhook.Outcome{StatusCode: code, Body: "ok", Latency: 2 * time.Millisecond}
	if code < 200 || code > 299 {
		out.Err = webhook.ErrUnexpectedStatus
	}
	return out
}

func (c *fakeClient) calls(url string) []webhook.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []webhook.Request
	for _, r := range c.requests {
		if r.URL == url {
			out = append(out, r)
		}
	}
	return out
}

func (c *fakeClient) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

type recordingNotifier struct {
	mu       sync.Mutex
	disabled []uuid.UUID
}

func (n *recordingNotifier) EndpointDisabled(_ context.Context, ep webhooks.Endpoint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disabled = append(n.disabled, ep.ID)
	return nil
}

type engine struct {
	store      *webhooks.MemoryStore
	client     *fakeClient
	pool       *manualPool
	clock      *clock
	notifier   *recordingNotifier
	deliverer  *webhooks.Deliverer
	dispatcher *webhooks.Dispatcher
	retries    *webhooks.RetryScheduler
	service    *webhooks.Service
}

func newEngine(t *testing.T, flags feature.Provider, extra ...webhooks.Option) *engine {
	t.Helper()

	c := newClock()
	e := &engine{
		store:    webhooks.NewMemoryStore(webhooks.WithStoreClock(c.Now)),
		client:   newFakeClient(),
		pool:     &manualPool{},
		clock:    c,
		notifier: &recordingNotifier{},
	}
	opts := append([]webhooks.Option{
		webhooks.WithLogger(quietLogger()),
		webhooks.WithClock(e.clock.Now),
		webhooks.WithNotifier(e.notifier),
		webhooks.WithAllowInsecureURLs(true),
	}, extra...)

	e.deliverer = webhooks.NewDeliverer(e.store, e.store, e.client, opts...)
	e.dispatcher = webhooks.NewDispatcher(e.store, e.store, e.deliverer, e.pool, flags, opts...)
	e.retries = webhooks.NewRetryScheduler(e.store, e.store, e.deliverer, e.pool, opts...)
	e.service = webhooks.NewService(e.store, e.store, e.client, opts...)
	return e
}

func (e *engine) endpoint(t *testing.T, tenantID uuid.UUID, url string, maxAttempts int, events ...string) *webhooks.Endpoint {
	t.Helper()
	ep, err := e.service.CreateEndpoint(context.Background(), tenantID, webhooks.EndpointInput{
		Name:        "ERP",
		URL:         url,
		Secret:      "s3cr3t",
		Events:      events,
		MaxAttempts: maxAttempts,
	})
	require.NoError(t, err)
	return ep
}

// tick advances the clock and runs one scheduler pass to completion.
func (e *engine) tick(t *testing.T, d time.Duration) {
	t.Helper()
	e.clock.Advance(d)
	require.NoError(t, e.retries.Tick(context.Background()))
	e.pool.drain(context.Background())
}

func (e *engine) history(t *testing.T, tenantID, endpointID uuid.UUID) []webhooks.Attempt {
	t.Helper()
	attempts, err := e.store.ListAttempts(context.Background(), tenantID, endpointID, webhooks.AttemptFilter{Limit: 500})
	require.NoError(t, err)
	return attempts
}
