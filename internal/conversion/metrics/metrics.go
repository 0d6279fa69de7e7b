// Package metrics exposes Prometheus instrumentation for the conversion
// engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	conversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gradenorm_conversions_total",
		Help: "Grade conversions performed, by target system",
	}, []string{"to_system"})

	conversionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gradenorm_conversion_failures_total",
		Help: "Grade conversions rejected, by error code",
	}, []string{"code"})

	latestIndexHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gradenorm_latest_conversion_index_total",
		Help: "Latest-conversion index lookups, by outcome",
	}, []string{"outcome"})

	convertDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gradenorm_convert_duration_ms",
		Help:    "Latency of grade conversions in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
	})
)

// Recorder is the conversion service's metrics sink.
type Recorder struct{}

func New() *Recorder { return &Recorder{} }

func (r *Recorder) IncConversion(toSystem string) {
	conversionsTotal.WithLabelValues(toSystem).Inc()
}

func (r *Recorder) IncConversionFailure(code string) {
	conversionFailures.WithLabelValues(code).Inc()
}

func (r *Recorder) IncLatestIndex(outcome string) {
	latestIndexHits.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveConvert(start time.Time) {
	convertDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}
