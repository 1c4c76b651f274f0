package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Session metrics
	ActiveSessions       prometheus.Gauge
	SessionsCreatedTotal prometheus.Counter

	// Write-concern enforcement metrics
	EnforceDuration prometheus.Histogram

	// HTTP surface metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "router_active_sessions",
				Help: "Number of live client sessions",
			},
		),

		SessionsCreatedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "router_sessions_created_total",
				Help: "Total number of client sessions created",
			},
		),

		EnforceDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "router_write_concern_enforce_duration_seconds",
				Help:    "Duration of full write-concern enforcement calls",
				Buckets: prometheus.DefBuckets,
			},
		),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "router_http_request_duration_seconds",
				Help:    "Duration of HTTP request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}
