package controller

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var IndexBatchCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mrindex",
	Subsystem: "indexing",
	Name:      "batches",
}, []string{"db", "index", "result"})

var IndexBatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "mrindex",
	Subsystem: "indexing",
	Name:      "batch_duration_seconds",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
}, []string{"db", "index"})

var IndexDocuments = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mrindex",
	Subsystem: "indexing",
	Name:      "documents",
}, []string{"db", "index", "kind"})

var IndexGroups = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mrindex",
	Subsystem: "indexing",
	Name:      "reduced_groups",
}, []string{"db", "index"})

var IndexErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mrindex",
	Subsystem: "indexing",
	Name:      "errors",
}, []string{"db", "index", "action"})

var IndexStale = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "mrindex",
	Subsystem: "indexing",
	Name:      "stale",
}, []string{"db", "index"})

var IndexReplacements = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mrindex",
	Subsystem: "indexing",
	Name:      "replacements",
}, []string{"db", "index"})

// RegisterMetrics registers the indexing metrics, registering twice is
// not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		IndexBatchCount,
		IndexBatchDuration,
		IndexDocuments,
		IndexGroups,
		IndexErrors,
		IndexStale,
		IndexReplacements,
	} {
		err := reg.Register(c)
		var are prometheus.AlreadyRegisteredError
		if err != nil && !errors.As(err, &are) {
			return err
		}
	}
	return nil
}

func forgetIndexMetrics(db, index string) {
	IndexStale.DeleteLabelValues(db, index)
	IndexBatchDuration.DeleteLabelValues(db, index)
	IndexGroups.DeleteLabelValues(db, index)
}
