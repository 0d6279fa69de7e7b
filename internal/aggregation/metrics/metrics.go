// Package metrics exposes Prometheus instrumentation for aggregation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the aggregation counters.
type Metrics struct {
	ExamsRead     prometheus.Counter
	ExamsExcluded prometheus.Counter
	Queries       *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		ExamsRead: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gradenorm_aggregation_exams_read_total",
			Help: "Exams selected into aggregation populations",
		}),
		ExamsExcluded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gradenorm_aggregation_exams_excluded_total",
			Help: "Exams excluded from averages because conversion failed",
		}),
		Queries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gradenorm_aggregation_queries_total",
			Help: "Aggregation queries served, by kind",
		}, []string{"kind"}),
	}
}
