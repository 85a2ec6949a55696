// Package metrics exposes Prometheus collectors for the board collector.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	collectorRunsTotal             *prometheus.CounterVec
	collectorItemsTotal            *prometheus.CounterVec
	collectorRunDurationSeconds    *prometheus.HistogramVec
	collectorLockContentionTotal   *prometheus.CounterVec
	collectorDroppedTriggersTotal  *prometheus.CounterVec
	collectorActiveWorkers         prometheus.Gauge
	collectorReconciledDocuments   prometheus.Counter
	collectorPublishFailuresTotal  *prometheus.CounterVec
	collectorPagesTotal            *prometheus.CounterVec
	collectorPageDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec
	collectorSkippedRowsTotal      *prometheus.CounterVec
	collectorAdapterTransportTotal *prometheus.CounterVec
	collectorHostWaitSeconds       *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		collectorRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_runs_total",
				Help: "Total number of source runs, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		collectorItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_items_total",
				Help: "Total number of merged items, labeled by source and action.",
			},
			[]string{"source", "action"},
		)

		collectorRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collector_run_duration_seconds",
				Help:    "Histogram of run durations, labeled by source.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"source"},
		)

		collectorLockContentionTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_lock_contention_total",
				Help: "Runs skipped because the source lock was held.",
			},
			[]string{"source"},
		)

		collectorDroppedTriggersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_dropped_triggers_total",
				Help: "Cron ticks dropped because the trigger queue was full.",
			},
			[]string{"source"},
		)

		collectorActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_active_workers",
				Help: "Number of workers currently running a source.",
			},
		)

		collectorReconciledDocuments = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "collector_reconciled_documents_total",
				Help: "Documents written to the index by startup reconciliation.",
			},
		)

		collectorPublishFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_publish_failures_total",
				Help: "Failed item.created publishes, labeled by source.",
			},
			[]string{"source"},
		)

		collectorPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_pages_total",
				Help: "List pages fetched, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		collectorPageDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collector_page_delay_seconds",
				Help:    "Histogram of pacing waits between list pages.",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10},
			},
			[]string{"source"},
		)

		collectorSkippedRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_skipped_rows_total",
				Help: "List rows skipped during extraction, labeled by source.",
			},
			[]string{"source"},
		)

		collectorAdapterTransportTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_adapter_transport_errors_total",
				Help: "Crawls cut short by a page fetch failure, labeled by source.",
			},
			[]string{"source"},
		)

		collectorHostWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collector_host_wait_seconds",
				Help:    "Histogram of time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records the outcome and duration of one run.
func ObserveRun(source, status string, duration time.Duration) {
	Init()
	collectorRunsTotal.WithLabelValues(source, status).Inc()
	if duration > 0 {
		collectorRunDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
	}
}

// ObserveItems adds n to the item counter for an action (insert, update, noop).
func ObserveItems(source, action string, n int) {
	Init()
	if n <= 0 {
		return
	}
	collectorItemsTotal.WithLabelValues(source, action).Add(float64(n))
}

// ObserveLockContention counts a run skipped on a held lock.
func ObserveLockContention(source string) {
	Init()
	collectorLockContentionTotal.WithLabelValues(source).Inc()
}

// ObserveDroppedTrigger counts a tick dropped on a full queue.
func ObserveDroppedTrigger(source string) {
	Init()
	collectorDroppedTriggersTotal.WithLabelValues(source).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	collectorActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	collectorActiveWorkers.Dec()
}

// ObserveReconciled adds n to the reconciled documents counter.
func ObserveReconciled(n int) {
	Init()
	if n > 0 {
		collectorReconciledDocuments.Add(float64(n))
	}
}

// ObservePublishFailure counts a failed item.created publish.
func ObservePublishFailure(source string) {
	Init()
	collectorPublishFailuresTotal.WithLabelValues(source).Inc()
}

// ObservePage counts a fetched list page.
func ObservePage(source, status string) {
	Init()
	collectorPagesTotal.WithLabelValues(source, status).Inc()
}

// ObservePageDelay records how long the adapter waited before a page fetch.
func ObservePageDelay(source string, d time.Duration) {
	Init()
	collectorPageDelaySeconds.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveSkippedRows adds n to the skipped rows counter.
func ObserveSkippedRows(source string, n int) {
	Init()
	if n > 0 {
		collectorSkippedRowsTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveAdapterTransportError counts a crawl cut short by a fetch failure.
func ObserveAdapterTransportError(source string) {
	Init()
	collectorAdapterTransportTotal.WithLabelValues(source).Inc()
}

// ObserveHostWait records a per-host rate limiter wait.
func ObserveHostWait(host string, d time.Duration) {
	Init()
	collectorHostWaitSeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
