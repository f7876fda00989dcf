// Package obs holds the Prometheus metrics of the bot.
package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worklog_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worklog_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	chatEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worklog_chat_events_total",
			Help: "Chat events handled by the dialog loop.",
		},
		[]string{"outcome"},
	)

	reportsSavedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worklog_reports_saved_total",
		Help: "Reports committed from the dialog.",
	})

	syncRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worklog_sync_rows_total",
			Help: "Rows written to monthly sinks by operation.",
		},
		[]string{"op"},
	)

	syncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worklog_sync_runs_total",
			Help: "Sync runs by outcome.",
		},
		[]string{"outcome"},
	)

	syncRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "worklog_sync_run_duration_seconds",
		Help:    "Duration of sync runs.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	})

	sinkRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worklog_sink_retries_total",
			Help: "Retried remote sink calls by operation and category.",
		},
		[]string{"op", "category"},
	)
)

var initOnce sync.Once

// Init registers the metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal, httpRequestDuration,
			chatEventsTotal, reportsSavedTotal,
			syncRowsTotal, syncRunsTotal, syncRunDuration, sinkRetriesTotal,
		)
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware records request count and latency per route
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// ChatEvent counts a handled chat event; outcome is "ok", "state_lost" or "error"
func ChatEvent(outcome string) {
	chatEventsTotal.WithLabelValues(outcome).Inc()
}

// ReportSaved counts a committed report
func ReportSaved() {
	reportsSavedTotal.Inc()
}

// SyncRows adds written rows for op ("insert", "update", "delete", "failed")
func SyncRows(op string, n int) {
	if n > 0 {
		syncRowsTotal.WithLabelValues(op).Add(float64(n))
	}
}

// SyncRun records a finished run
func SyncRun(outcome string, d time.Duration) {
	syncRunsTotal.WithLabelValues(outcome).Inc()
	syncRunDuration.Observe(d.Seconds())
}

// SinkRetry counts one retried remote call
func SinkRetry(op, category string) {
	sinkRetriesTotal.WithLabelValues(op, category).Inc()
}
