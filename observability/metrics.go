package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type escrowMetrics struct {
	invocations *prometheus.CounterVec
	failures    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	transfers   *prometheus.CounterVec
	events      *prometheus.CounterVec
}

type httpMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	escrowMetricsOnce sync.Once
	escrowRegistry    *escrowMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics
)

// Escrow returns the lazily-initialised registry tracking escrow invocations.
func Escrow() *escrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &escrowMetrics{
			invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cyberswap",
				Subsystem: "escrow",
				Name:      "invocations_total",
				Help:      "Escrow invocations segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cyberswap",
				Subsystem: "escrow",
				Name:      "failures_total",
				Help:      "Rejected escrow invocations segmented by action and error kind.",
			}, []string{"action", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cyberswap",
				Subsystem: "escrow",
				Name:      "invocation_duration_seconds",
				Help:      "Latency of escrow invocations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action"}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cyberswap",
				Subsystem: "escrow",
				Name:      "transfers_total",
				Help:      "Settlement transfers delivered out of escrow segmented by asset kind.",
			}, []string{"kind"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cyberswap",
				Subsystem: "escrow",
				Name:      "events_total",
				Help:      "Events published by committed invocations.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			escrowRegistry.invocations,
			escrowRegistry.failures,
			escrowRegistry.latency,
			escrowRegistry.transfers,
			escrowRegistry.events,
		)
	})
	return escrowRegistry
}

func normalizeLabel(value, fallback string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return fallback
	}
	return value
}

// ObserveInvocation records one invocation. kind is empty for successes.
func (m *escrowMetrics) ObserveInvocation(action, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	action = normalizeLabel(action, "unknown")
	outcome := "success"
	if kind != "" {
		outcome = "error"
		m.failures.WithLabelValues(action, normalizeLabel(kind, "generic")).Inc()
	}
	m.invocations.WithLabelValues(action, outcome).Inc()
	if duration > 0 {
		m.latency.WithLabelValues(action).Observe(duration.Seconds())
	}
}

// RecordTransfer counts one delivered settlement transfer.
func (m *escrowMetrics) RecordTransfer(kind string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(normalizeLabel(kind, "unknown")).Inc()
}

// RecordEvent counts one published event.
func (m *escrowMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType, "unknown")).Inc()
}

// HTTP returns the registry used by the RPC server middleware.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cyberswap",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cyberswap",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cyberswap",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Requests rejected by the rate limiter.",
			}, []string{"route"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttles)
	})
	return httpRegistry
}

// Observe records the outcome of one HTTP request.
func (m *httpMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = normalizeLabel(route, "unmatched")
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	if duration > 0 {
		m.latency.WithLabelValues(route).Observe(duration.Seconds())
	}
}

// RecordThrottle increments the throttle counter for route.
func (m *httpMetrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(normalizeLabel(route, "unmatched")).Inc()
}
