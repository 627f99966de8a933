// Package metrics holds the prometheus collectors for the collection store,
// the mutation outbox, and the capture optimizer. Collectors are registered
// explicitly from the composition root, not via init side effects.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// StoreWritesTotal counts collection writes by collection key and operation.
	StoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uxsync",
			Name:      "store_writes_total",
			Help:      "Collection store writes",
		},
		[]string{"collection", "op"},
	)

	// StoreWriteFailuresTotal counts dropped writes (serialization or storage failure).
	StoreWriteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uxsync",
			Name:      "store_write_failures_total",
			Help:      "Collection store writes dropped on persistence failure",
		},
		[]string{"collection"},
	)

	// OutboxSubmissionsTotal counts mutations accepted by the outbox.
	OutboxSubmissionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "uxsync",
			Name:      "outbox_submissions_total",
			Help:      "Mutations enqueued",
		},
	)

	// OutboxFailuresTotal counts mutations that settled in an error state.
	OutboxFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "uxsync",
			Name:      "outbox_failures_total",
			Help:      "Mutations that exhausted retries",
		},
	)

	// OutboxQueueDepth tracks mutations currently pending or paused.
	OutboxQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "uxsync",
			Name:      "outbox_queue_depth",
			Help:      "Mutations pending or paused",
		},
	)

	// OptimizeDuration observes end-to-end optimization latency by strategy.
	OptimizeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "uxsync",
			Name:      "optimize_duration_seconds",
			Help:      "Capture optimization duration",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"strategy"},
	)

	// OptimizeFallbacksTotal counts strategy fall-throughs by stage.
	OptimizeFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uxsync",
			Name:      "optimize_fallbacks_total",
			Help:      "Optimization strategy fall-throughs",
		},
		[]string{"from"},
	)
)

// Register registers all uxsync collectors on the given registerer.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		StoreWritesTotal,
		StoreWriteFailuresTotal,
		OutboxSubmissionsTotal,
		OutboxFailuresTotal,
		OutboxQueueDepth,
		OptimizeDuration,
		OptimizeFallbacksTotal,
		httpRequestDuration,
		httpRequestsTotal,
	)
}
