// Package metrics exposes Prometheus instrumentation for the dispatch
// pipeline. Collectors register against the default registry so the
// /metrics endpoint picks them up without extra wiring.
package metrics

import (
	"github.com/cortexops/dispatch/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entriesQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_entries_queued_total",
		Help: "Total queue entries created by the dispatcher, by executor class.",
	}, []string{"executor_class"})

	entriesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_entries_completed_total",
		Help: "Total queue entries completed successfully, by executor class.",
	}, []string{"executor_class"})

	entriesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_entries_failed_total",
		Help: "Total failed execution attempts, by executor class.",
	}, []string{"executor_class"})

	entriesQuarantined = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_entries_quarantined_total",
		Help: "Total queue entries quarantined after exhausting retries, by executor class.",
	}, []string{"executor_class"})

	breakerTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_breaker_trips_total",
		Help: "Total circuit breaker trips blocking a task from re-queueing.",
	})

	entriesArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_entries_archived_total",
		Help: "Total queue entries moved to the archive by sweeps and cancellation.",
	})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_queue_depth",
		Help: "Current queue entry count by status, refreshed on stats reads.",
	}, []string{"status"})
)

// RecordEntryQueued counts a new entry entering the queue.
func RecordEntryQueued(class domain.ExecutorClass) {
	entriesQueued.WithLabelValues(string(class)).Inc()
}

// RecordEntryCompleted counts a successful completion.
func RecordEntryCompleted(class domain.ExecutorClass) {
	entriesCompleted.WithLabelValues(string(class)).Inc()
}

// RecordEntryFailed counts a failed execution attempt.
func RecordEntryFailed(class domain.ExecutorClass) {
	entriesFailed.WithLabelValues(string(class)).Inc()
}

// RecordEntryQuarantined counts an entry moving to quarantine.
func RecordEntryQuarantined(class domain.ExecutorClass) {
	entriesQuarantined.WithLabelValues(string(class)).Inc()
}

// RecordBreakerTrip counts a circuit breaker trip.
func RecordBreakerTrip() {
	breakerTrips.Inc()
}

// RecordEntriesArchived counts entries retired to the archive.
func RecordEntriesArchived(n int) {
	entriesArchived.Add(float64(n))
}

// UpdateQueueDepth refreshes the per-status depth gauge.
func UpdateQueueDepth(byStatus map[domain.QueueStatus]int) {
	for status, count := range byStatus {
		queueDepth.WithLabelValues(string(status)).Set(float64(count))
	}
}
