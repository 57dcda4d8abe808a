// Package metrics exposes LogLens Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loglens/loglens/pkg/models"
)

const namespace = "loglens"

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

// Metrics holds the LogLens collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
	authFailures   *prometheus.CounterVec

	chatLatency *prometheus.HistogramVec
	chatErrors  *prometheus.CounterVec

	summaries        *prometheus.CounterVec
	summaryLatency   prometheus.Histogram
	sinkPublishes    *prometheus.CounterVec
	providerSwitches *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"})

	m.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"})

	m.rateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "rate_limit_hits_total",
		Help:      "Number of rate-limited responses",
	}, []string{"route"})

	m.authFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "auth_failures_total",
		Help:      "Requests rejected for a missing or invalid API key",
	}, []string{"reason"})

	m.chatLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "generate_duration_seconds",
		Help:      "Latency of provider generate calls",
		Buckets:   histogramBuckets,
	}, []string{"mode"})

	m.chatErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "errors_total",
		Help:      "Failed provider calls by category",
	}, []string{"mode", "category"})

	m.summaries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "summaries_total",
		Help:      "Summaries produced by the pipeline",
	}, []string{"narrative"})

	m.summaryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "summary_duration_seconds",
		Help:      "Time to summarize one record",
		Buckets:   histogramBuckets,
	})

	m.sinkPublishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "sink_publishes_total",
		Help:      "Summary deliveries by sink and result",
	}, []string{"sink", "result"})

	m.providerSwitches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "provider_switches_total",
		Help:      "Provider switch attempts by requested mode and result",
	}, []string{"mode", "result"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal, m.requestLatency, m.rateLimitHits, m.authFailures,
		m.chatLatency, m.chatErrors,
		m.summaries, m.summaryLatency, m.sinkPublishes, m.providerSwitches,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ── HTTP ────────────────────────────────────────────────────

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(d.Seconds())
}

func (m *Metrics) ObserveRateLimited(route string) {
	m.rateLimitHits.WithLabelValues(route).Inc()
}

func (m *Metrics) ObserveAuthFailure(reason string) {
	m.authFailures.WithLabelValues(reason).Inc()
}

// ── Chat ────────────────────────────────────────────────────

// ObserveChat implements chat.Observer.
func (m *Metrics) ObserveChat(mode models.ProviderMode, d time.Duration, err error) {
	m.chatLatency.WithLabelValues(string(mode)).Observe(d.Seconds())
	if err == nil {
		return
	}
	category := "unknown"
	if pe, ok := models.AsProviderError(err); ok {
		category = string(pe.Category)
	} else if errors.Is(err, context.Canceled) {
		category = "canceled"
	}
	m.chatErrors.WithLabelValues(string(mode), category).Inc()
}

func (m *Metrics) ObserveSwitch(mode string, err error) {
	m.providerSwitches.WithLabelValues(mode, result(err)).Inc()
}

// ── Pipeline ────────────────────────────────────────────────

// ObserveSummary implements pipeline.Observer.
func (m *Metrics) ObserveSummary(d time.Duration, narrativeErr error) {
	m.summaryLatency.Observe(d.Seconds())
	m.summaries.WithLabelValues(result(narrativeErr)).Inc()
}

// ObserveSink implements pipeline.Observer.
func (m *Metrics) ObserveSink(sink string, err error) {
	m.sinkPublishes.WithLabelValues(sink, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
