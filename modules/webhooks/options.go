package webhooks

import (
	"log/slog"
	"time"

	"github.com/oficinapro/backend/pkg/webhook"
)

// Option configures the engine components. The same option list can be
// passed to every constructor; each component reads what it needs.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	now           func() time.Time
	metrics       *Metrics
	backoff       webhook.Backoff
	lease         time.Duration
	batchSize     int
	notifier      Notifier
	allowInsecure bool
	retention     time.Duration
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:    slog.Default(),
		now:       time.Now,
		backoff:   webhook.DefaultSchedule,
		lease:     5 * time.Minute,
		batchSize: 100,
		retention: 90 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.notifier == nil {
		o.notifier = NewLogNotifier(o.logger)
	}
	return o
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBackoff replaces the default 1/5/15/30/60 minute ladder.
func WithBackoff(b webhook.Backoff) Option {
	return func(o *options) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithClaimLease sets how long a claimed or in-flight attempt stays locked.
// It must exceed MaxTimeout.
func WithClaimLease(d time.Duration) Option {
	return func(o *options) {
		if d > MaxTimeout {
			o.lease = d
		}
	}
}

// WithRetryBatchSize caps the rows claimed per scheduler tick.
func WithRetryBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithNotifier sets who is told about disabled endpoints.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithAllowInsecureURLs accepts plain http endpoint URLs.
func WithAllowInsecureURLs(allow bool) Option {
	return func(o *options) { o.allowInsecure = allow }
}

// WithRetention sets how long settled attempts are kept. Zero disables
// purging.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.retention = d
		}
	}
}
