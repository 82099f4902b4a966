package peek

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts peek outcomes.
type Metrics struct {
	// Completed counts peeks that delivered rows.
	Completed prometheus.Counter
	// Canceled counts peeks that finished canceled.
	Canceled prometheus.Counter
	// Failed counts peeks that finished with an error.
	Failed prometheus.Counter
	// ResultRows observes the number of rows delivered per peek.
	ResultRows prometheus.Histogram
}

// NewMetrics creates peek metrics registered with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Completed: f.NewCounter(prometheus.CounterOpts{
			Name: "mzcore_peeks_completed_total",
			Help: "Total number of peeks that delivered rows",
		}),
		Canceled: f.NewCounter(prometheus.CounterOpts{
			Name: "mzcore_peeks_canceled_total",
			Help: "Total number of peeks that finished canceled",
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Name: "mzcore_peeks_failed_total",
			Help: "Total number of peeks that finished with an error",
		}),
		ResultRows: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mzcore_peek_result_rows",
			Help:    "Number of rows delivered per peek",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}
