package rtcdoc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var DocumentOps = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rtcdoc",
	Subsystem: "document",
	Name:      "ops",
}, []string{"op", "result"})

var DocumentOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "rtcdoc",
	Subsystem: "document",
	Name:      "op_duration_ms",
	Buckets:   []float64{0, 0.1, 0.5, 1, 5, 10, 50, 100, 500},
}, []string{"op"})

var DocumentChangesApplied = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "rtcdoc",
	Subsystem: "document",
	Name:      "changes_applied",
})

var DocumentSnapshotBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "rtcdoc",
	Subsystem: "document",
	Name:      "snapshot_bytes",
	Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
})

// Collectors lists the document metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		DocumentOps,
		DocumentOpDuration,
		DocumentChangesApplied,
		DocumentSnapshotBytes,
	}
}

func observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	DocumentOps.WithLabelValues(op, result).Inc()
	DocumentOpDuration.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000)
}
