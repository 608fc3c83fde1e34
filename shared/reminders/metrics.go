package reminders

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the notification engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// DeliveriesTotal counts delivery attempts by channel and status.
	DeliveriesTotal *prometheus.CounterVec

	// DueNotifications is the number of notifications found by the last pass.
	DueNotifications prometheus.Gauge

	// DeliveryDuration is the time spent on one delivery attempt.
	DeliveryDuration *prometheus.HistogramVec

	// MutationFailures counts post-dispatch entity updates that failed.
	MutationFailures *prometheus.CounterVec

	// DigestsTotal counts digest outcomes (sent, skipped_same_day, skipped_empty, failed).
	DigestsTotal *prometheus.CounterVec

	// RateLimitWaits is the total number of rate limit waits.
	RateLimitWaits prometheus.Counter
}

// NewMetrics creates metrics registered on reg. A nil reg creates unregistered
// collectors, which keeps tests free of duplicate registration panics.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_deliveries_total",
				Help:      "Total number of notification delivery attempts",
			},
			[]string{"channel", "status"},
		),

		DueNotifications: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "due_notifications",
				Help:      "Number of due notifications found by the last pass",
			},
		),

		DeliveryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "notification_delivery_duration_seconds",
				Help:      "Time to deliver one notification",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5},
			},
			[]string{"channel"},
		),

		MutationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_mutation_failures_total",
				Help:      "Total number of failed post-dispatch entity updates",
			},
			[]string{"origin"},
		),

		DigestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "digests_total",
				Help:      "Daily digest outcomes",
			},
			[]string{"outcome"},
		),

		RateLimitWaits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_waits_total",
				Help:      "Total number of rate limit waits",
			},
		),
	}
}

func (m *Metrics) IncDelivery(channel Channel, status DeliveryStatus) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(string(channel), string(status)).Inc()
}

func (m *Metrics) ObserveDelivery(channel Channel, d time.Duration) {
	if m == nil {
		return
	}
	m.DeliveryDuration.WithLabelValues(string(channel)).Observe(d.Seconds())
}

func (m *Metrics) SetDue(n int) {
	if m == nil {
		return
	}
	m.DueNotifications.Set(float64(n))
}

func (m *Metrics) IncMutationFailure(origin Origin) {
	if m == nil {
		return
	}
	m.MutationFailures.WithLabelValues(string(origin)).Inc()
}

func (m *Metrics) IncDigest(outcome string) {
	if m == nil {
		return
	}
	m.DigestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRateLimitWaits() {
	if m == nil {
		return
	}
	m.RateLimitWaits.Inc()
}
