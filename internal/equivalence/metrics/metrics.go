// Package metrics exposes Prometheus instrumentation for the equivalence
// graph.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the equivalence graph counters.
type Metrics struct {
	EdgesAdded   prometheus.Counter
	EdgesRemoved prometheus.Counter
	ClosureSizes prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		EdgesAdded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gradenorm_equivalence_edges_added_total",
			Help: "Equivalence edges added to the graph",
		}),
		EdgesRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gradenorm_equivalence_edges_removed_total",
			Help: "Equivalence edges removed from the graph",
		}),
		ClosureSizes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gradenorm_equivalence_closure_size",
			Help:    "Size of equivalence classes returned by closure queries",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		}),
	}
}
