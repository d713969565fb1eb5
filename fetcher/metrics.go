package fetcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for outbound fetches.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs the fetch collectors and registers them on reg when
// it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_fetch_requests_total",
			Help: "Outbound fetches by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resale_fetch_duration_seconds",
			Help:    "Latency of outbound fetches by strategy.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "resale_fetch_retries_total",
			Help: "Retry attempts within a strategy.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_fetch_errors_total",
			Help: "Outbound fetch errors by type.",
		},
		[]string{"error_type"},
	)

	if reg != nil {
		reg.MustRegister(requests, requestDuration, retries, errorsTotal)
	}

	return &Metrics{
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the request counter for a strategy outcome.
func (m *Metrics) IncRequest(strategy, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveDuration records a strategy request duration.
func (m *Metrics) ObserveDuration(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
