package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subsync",
			Name:      "gateway_requests_total",
			Help:      "Gateway API requests by action and result.",
		},
		[]string{"action", "result"},
	)

	syncOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subsync",
			Name:      "sync_items_total",
			Help:      "Reconciliation item outcomes by job and result.",
		},
		[]string{"job", "outcome"},
	)

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subsync",
			Name:      "sync_runs_total",
			Help:      "Completed reconciliation ticks by job.",
		},
		[]string{"job"},
	)

	syncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "subsync",
			Name:      "sync_run_duration_seconds",
			Help:      "Wall time of one reconciliation tick.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"job"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(gatewayRequests, syncOutcomes, syncRuns, syncDuration)
	})
}

// IncGatewayRequest increments the request counter for an action/result pair.
func IncGatewayRequest(action, result string) {
	gatewayRequests.WithLabelValues(action, result).Inc()
}

// IncSyncOutcome counts one item outcome for a job.
func IncSyncOutcome(job, outcome string) {
	syncOutcomes.WithLabelValues(job, outcome).Inc()
}

// ObserveSyncRun records a completed tick and its duration.
func ObserveSyncRun(job string, seconds float64) {
	syncRuns.WithLabelValues(job).Inc()
	syncDuration.WithLabelValues(job).Observe(seconds)
}
