// Package metrics holds the prometheus collectors shared by the resource
// services.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ibabi"

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics owns a private registry and the ledger collectors.
type Metrics struct {
	registry *prometheus.Registry

	transitions        *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	outboxPublished    *prometheus.CounterVec
	outboxPending      prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Ledger operations by request kind, transition and outcome.",
			},
			[]string{"kind", "transition", "outcome"},
		),
		transitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transition_duration_seconds",
				Help:      "Wall time of ledger operations including lock waits.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind", "transition"},
		),
		outboxPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_published_total",
				Help:      "Outbox events handed to the broker.",
			},
			[]string{"outcome"},
		),
		outboxPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "outbox_pending",
				Help:      "Outbox events still pending after the last relay pass.",
			},
		),
	}

	m.registry.MustRegister(
		m.transitions,
		m.transitionDuration,
		m.outboxPublished,
		m.outboxPending,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveTransition records one ledger operation. A nil receiver is a no-op so
// services can run without metrics in tests.
func (m *Metrics) ObserveTransition(kind, transition string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.transitions.WithLabelValues(kind, transition, outcome).Inc()
	m.transitionDuration.WithLabelValues(kind, transition).Observe(time.Since(started).Seconds())
}

// OutboxPublished counts relay results.
func (m *Metrics) OutboxPublished(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.outboxPublished.WithLabelValues(OutcomeSuccess).Inc()
		return
	}
	m.outboxPublished.WithLabelValues(OutcomeFailure).Inc()
}

// SetOutboxPending sets the backlog gauge.
func (m *Metrics) SetOutboxPending(n int) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(n))
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
