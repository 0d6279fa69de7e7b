package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the temporal hierarchy module.
type Metrics struct {
	EnrollmentsCreated        prometheus.Counter
	SubjectEnrollmentsCreated prometheus.Counter
	ExamsRecorded             prometheus.Counter
	ContainmentRejections     *prometheus.CounterVec
	ListExamsDuration         prometheus.Histogram
}

// New registers and returns the hierarchy module metrics.
func New() *Metrics {
	return &Metrics{
		EnrollmentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gradenorm_enrollments_created_total",
			Help: "Total number of institution enrollments created",
		}),
		SubjectEnrollmentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gradenorm_subject_enrollments_created_total",
			Help: "Total number of subject enrollments created",
		}),
		ExamsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gradenorm_exams_recorded_total",
			Help: "Total number of exam instances recorded",
		}),
		ContainmentRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gradenorm_containment_rejections_total",
			Help: "Writes rejected by containment validation, by error code",
		}, []string{"code"}),
		ListExamsDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gradenorm_list_exams_duration_seconds",
			Help:    "Duration of exam range queries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveListExams records the duration of one exam listing. Call with
// time.Now() captured at the start of the query.
func (m *Metrics) ObserveListExams(start time.Time) {
	m.ListExamsDuration.Observe(time.Since(start).Seconds())
}

// IncrementRejection counts a containment rejection by code.
func (m *Metrics) IncrementRejection(code string) {
	m.ContainmentRejections.WithLabelValues(code).Inc()
}
