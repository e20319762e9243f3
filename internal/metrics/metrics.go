// Package metrics holds the Prometheus collectors for ingestion and dispatch.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "funnel"

// Metrics is a set of collectors registered on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	EventsReceived  *prometheus.CounterVec
	EventsRejected  *prometheus.CounterVec
	EventsParsed    *prometheus.CounterVec
	EventsFallback  prometheus.Counter
	Deliveries      *prometheus.CounterVec
	DeliverySeconds prometheus.Histogram
	QueueDepth      prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_received_total",
			Help:      "Webhook payloads accepted onto the queue.",
		}, []string{"source"}),
		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_rejected_total",
			Help:      "Webhook requests rejected before queueing.",
		}, []string{"reason"}),
		EventsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_parsed_total",
			Help:      "Events translated by a parser.",
		}, []string{"route"}),
		EventsFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_fallback_total",
			Help:      "Events no parser matched, forwarded verbatim.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "deliveries_total",
			Help:      "Chat delivery attempts by result.",
		}, []string{"result"}),
		DeliverySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "delivery_duration_seconds",
			Help:      "Duration of single chat delivery calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Events waiting for dispatch.",
		}),
	}

	reg.MustRegister(
		m.EventsReceived,
		m.EventsRejected,
		m.EventsParsed,
		m.EventsFallback,
		m.Deliveries,
		m.DeliverySeconds,
		m.QueueDepth,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Received(source string) {
	if m == nil {
		return
	}
	if source == "" {
		source = "any"
	}
	m.EventsReceived.WithLabelValues(source).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.EventsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Parsed(route string) {
	if m == nil {
		return
	}
	m.EventsParsed.WithLabelValues(route).Inc()
}

func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.EventsFallback.Inc()
}

// Delivered records one delivery attempt.
func (m *Metrics) Delivered(seconds float64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.Deliveries.WithLabelValues(result).Inc()
	m.DeliverySeconds.Observe(seconds)
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
