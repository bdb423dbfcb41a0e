package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/peoplehub/hr-notify/internal/dispatcher"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	EmailsSent      *prometheus.CounterVec
	EmailsFailed    *prometheus.CounterVec
	EmailRetries    *prometheus.CounterVec
	DispatchLatency *prometheus.HistogramVec
	QueuePending    prometheus.Gauge
	EventsReceived  *prometheus.CounterVec
	Duplicates      *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EmailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total number of emails accepted by the outbound provider.",
		}, []string{"module"}),

		EmailsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_failed_total",
			Help: "Total number of terminally failed queue entries.",
		}, []string{"module"}),

		EmailRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "email_retries_total",
			Help: "Total number of retry attempts scheduled after transient send failures.",
		}, []string{"module"}),

		DispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_seconds",
			Help:    "Per-entry dispatch latency from claim to provider ack.",
			Buckets: prometheus.DefBuckets,
		}, []string{"module"}),

		QueuePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_pending",
			Help: "Current number of pending entries in the queue store.",
		}),

		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_received_total",
			Help: "Total number of producer events, labelled by guard result.",
		}, []string{"module", "result"}),

		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duplicates_suppressed_total",
			Help: "Total number of events suppressed by the dedup key.",
		}, []string{"module"}),
	}

	reg.MustRegister(
		m.EmailsSent,
		m.EmailsFailed,
		m.EmailRetries,
		m.DispatchLatency,
		m.QueuePending,
		m.EventsReceived,
		m.Duplicates,
	)

	return m
}

// DispatchHooks returns the callback set expected by the dispatcher.
// Centralises the prometheus observation calls so dispatcher.go stays
// import-free.
func (m *Metrics) DispatchHooks() dispatcher.Hooks {
	return dispatcher.Hooks{
		OnSent: func(module string, latency time.Duration) {
			m.EmailsSent.WithLabelValues(module).Inc()
			m.DispatchLatency.WithLabelValues(module).Observe(latency.Seconds())
		},
		OnFailed: func(module string) {
			m.EmailsFailed.WithLabelValues(module).Inc()
		},
		OnRetry: func(module string) {
			m.EmailRetries.WithLabelValues(module).Inc()
		},
	}
}

// ObserveEvent records one producer event and its guard outcome.
func (m *Metrics) ObserveEvent(module, result string) {
	m.EventsReceived.WithLabelValues(module, result).Inc()
	if result == "duplicate_suppressed" {
		m.Duplicates.WithLabelValues(module).Inc()
	}
}

// SetQueueDepth updates the pending-entry gauge. Called by the
// dispatcher pool after each poll round.
func (m *Metrics) SetQueueDepth(pending int) {
	m.QueuePending.Set(float64(pending))
}
