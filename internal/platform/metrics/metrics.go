// Package metrics holds the HTTP layer Prometheus instrumentation. Domain
// modules register their own metrics next to their services.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP holds the request level metrics recorded by middleware.
type HTTP struct {
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// NewHTTP creates and registers the HTTP metrics.
func NewHTTP() *HTTP {
	return &HTTP{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gradenorm_http_request_duration_ms",
			Help:    "HTTP request latency in milliseconds",
			Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"method", "route", "status"}),
		RequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gradenorm_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}),
	}
}

// Observe records one served request.
func (m *HTTP) Observe(method, route string, status int, start time.Time) {
	m.RequestDuration.
		WithLabelValues(method, route, statusClass(status)).
		Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
