package webhooks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the delivery engine's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	Attempts          *prometheus.CounterVec
	AttemptLatency    prometheus.Histogram
	EndpointsDisabled prometheus.Counter
	RetriesClaimed    prometheus.Counter
	Abandoned         prometheus.Counter
	DispatchSkipped   *prometheus.CounterVec
	Purged            prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhooks",
			Name:      "attempts_total",
			Help:      "Webhook delivery attempts by resulting status",
		}, []string{"status"}),
		AttemptLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhooks",
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of webhook HTTP attempts",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		EndpointsDisabled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhooks",
			Name:      "endpoints_disabled_total",
			Help:      "Endpoints disabled after consecutive failures",
		}),
		RetriesClaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhooks",
			Name:      "retries_claimed_total",
			Help:      "Due attempt rows claimed by the retry scheduler",
		}),
		Abandoned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhooks",
			Name:      "attempts_abandoned_total",
			Help:      "Scheduled attempts dropped because the endpoint was disabled or deleted",
		}),
		DispatchSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhooks",
			Name:      "dispatch_skipped_total",
			Help:      "Events not fanned out, by reason",
		}, []string{"reason"}),
		Purged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhooks",
			Name:      "attempts_purged_total",
			Help:      "Settled attempt rows removed by retention",
		}),
	}
}

func (m *Metrics) attempt(status Status, latency time.Duration) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(string(status)).Inc()
	m.AttemptLatency.Observe(latency.Seconds())
}

func (m *Metrics) endpointDisabled() {
	if m != nil {
		m.EndpointsDisabled.Inc()
	}
}

func (m *Metrics) retriesClaimed(n int) {
	if m != nil {
		m.RetriesClaimed.Add(float64(n))
	}
}

func (m *Metrics) abandoned() {
	if m != nil {
		m.Abandoned.Inc()
	}
}

func (m *Metrics) skipped(reason string) {
	if m != nil {
		m.DispatchSkipped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) purged(n int64) {
	if m != nil {
		m.Purged.Add(float64(n))
	}
}
