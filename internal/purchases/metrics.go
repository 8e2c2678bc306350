package purchases

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PurchaseOpsTotal counts ledger operations by type.
	PurchaseOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peerflag",
			Name:      "purchase_operations_total",
			Help:      "Total purchase ledger operations by type.",
		},
		[]string{"type"},
	)

	// PurchaseOpDuration observes operation latency by type.
	PurchaseOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "peerflag",
			Name:      "purchase_operation_duration_seconds",
			Help:      "Purchase ledger operation duration in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		PurchaseOpsTotal,
		PurchaseOpDuration,
	)
}

// observeOp increments the operation counter and returns a function to observe duration.
func observeOp(opType string) func() {
	PurchaseOpsTotal.WithLabelValues(opType).Inc()
	start := time.Now()
	return func() {
		PurchaseOpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
	}
}
