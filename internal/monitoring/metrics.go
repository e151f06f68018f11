package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP module (simplified)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "logpurge",
			Subsystem: "http",
			Name:      "request_total",
			Help:      "Total number of HTTP requests by method and path",
		},
		[]string{"method", "path", "code"},
	)

	// Purge passes by trigger (startup, tick, manual) and outcome (ok, partial, scan_error, lock_error)
	PurgePassesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logpurge",
		Subsystem: "purge",
		Name:      "passes_total",
		Help:      "Number of completed purge passes",
	}, []string{"trigger", "outcome"})

	PurgePassDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "logpurge",
		Subsystem: "purge",
		Name:      "pass_seconds",
		Help:      "Duration of a purge pass",
	})

	PurgeFilesDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logpurge",
		Subsystem: "purge",
		Name:      "files_deleted_total",
		Help:      "Number of expired log files deleted",
	})

	PurgeDeleteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logpurge",
		Subsystem: "purge",
		Name:      "delete_failures_total",
		Help:      "Number of expired log files that could not be deleted",
	})

	// Ticks dropped because a pass was still running or another replica held the lock
	PurgeSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logpurge",
		Subsystem: "purge",
		Name:      "skipped_total",
		Help:      "Number of purge passes skipped",
	}, []string{"reason"})

	// History store maintenance
	HistoryPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logpurge",
		Subsystem: "history",
		Name:      "pruned_total",
		Help:      "Number of purge history rows deleted by cleanup worker",
	})
)

var initOnce sync.Once

// Init registers collectors (idempotent).
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpRequestsTotal)
		prometheus.MustRegister(PurgePassesTotal)
		prometheus.MustRegister(PurgePassDuration)
		prometheus.MustRegister(PurgeFilesDeleted)
		prometheus.MustRegister(PurgeDeleteFailures)
		prometheus.MustRegister(PurgeSkipped)
		prometheus.MustRegister(HistoryPrunedTotal)
	})
}

// Handler returns a Prometheus metrics HTTP handler.
func Handler() http.Handler { return promhttp.Handler() }

// IncHTTP increments HTTP request counters.
func IncHTTP(method, path, code string) {
	httpRequestsTotal.WithLabelValues(method, path, code).Inc()
}

// ObservePurgePass records a finished pass.
func ObservePurgePass(trigger, outcome string, deleted, failed int, took time.Duration) {
	PurgePassesTotal.WithLabelValues(trigger, outcome).Inc()
	PurgePassDuration.Observe(took.Seconds())
	if deleted > 0 {
		PurgeFilesDeleted.Add(float64(deleted))
	}
	if failed > 0 {
		PurgeDeleteFailures.Add(float64(failed))
	}
}

// IncPurgeSkipped counts a pass that did not run.
func IncPurgeSkipped(reason string) {
	PurgeSkipped.WithLabelValues(reason).Inc()
}
