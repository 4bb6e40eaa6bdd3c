package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the notifier's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	evaluations        *prometheus.CounterVec
	notificationsSent  *prometheus.CounterVec
	notificationsFail  *prometheus.CounterVec
	changeEvents       *prometheus.CounterVec
	sweepItems         *prometheus.CounterVec
	sweepDuration      prometheus.Histogram
	lastSweepTimestamp prometheus.Gauge
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates and registers all collectors under namespace
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Due-date evaluations by resulting notification kind",
			},
			[]string{"kind"},
		),
		notificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_sent_total",
				Help:      "Notifications accepted by the transport",
			},
			[]string{"kind"},
		),
		notificationsFail: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_failed_total",
				Help:      "Notifications that could not be sent or persisted",
			},
			[]string{"kind", "reason"},
		),
		changeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "change_events_total",
				Help:      "Change feed events by classification",
			},
			[]string{"change"},
		),
		sweepItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_items_total",
				Help:      "Items handled by timer sweeps by outcome",
			},
			[]string{"outcome"},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Duration of a full sweep",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
		),
		lastSweepTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_sweep_timestamp_seconds",
				Help:      "Unix time the last sweep finished",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	registry.MustRegister(
		m.evaluations,
		m.notificationsSent,
		m.notificationsFail,
		m.changeEvents,
		m.sweepItems,
		m.sweepDuration,
		m.lastSweepTimestamp,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveEvaluation(kind string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveSent(kind string) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveFailure(kind, reason string) {
	if m == nil {
		return
	}
	m.notificationsFail.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) ObserveChange(change string) {
	if m == nil {
		return
	}
	m.changeEvents.WithLabelValues(change).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration, sent, skipped, failed int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
	m.sweepItems.WithLabelValues("sent").Add(float64(sent))
	m.sweepItems.WithLabelValues("skipped").Add(float64(skipped))
	m.sweepItems.WithLabelValues("failed").Add(float64(failed))
	m.lastSweepTimestamp.SetToCurrentTime()
}

func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
