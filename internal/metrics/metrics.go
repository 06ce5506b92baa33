package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshot persistence paths.
const (
	SnapshotPathHTTP   = "http"
	SnapshotPathQueue  = "queue"
	SnapshotPathSingle = "queue_fallback"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	ViolationsLogged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_violations_logged_total",
			Help: "Violations recorded, by severity",
		},
		[]string{"severity"},
	)

	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proctor_sessions_started_total",
			Help: "Exam sessions created",
		},
	)

	SessionsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_sessions_completed_total",
			Help: "Exam sessions completed, by submission type",
		},
		[]string{"submission_type"},
	)

	ScoreFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proctor_score_fallbacks_total",
			Help: "Completions scored in-process because the database aggregate failed",
		},
	)

	SnapshotsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_snapshots_persisted_total",
			Help: "Snapshots written to the snapshot log, by path",
		},
		[]string{"path"},
	)

	SnapshotsPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proctor_snapshots_pruned_total",
			Help: "Snapshots removed by the retention sweep",
		},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			ViolationsLogged,
			SessionsStarted,
			SessionsCompleted,
			ScoreFallbacks,
			SnapshotsPersisted,
			SnapshotsPruned,
		)
	})
}

// MetricsMiddleware records count and latency per route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// PrometheusHandler exposes the default registry.
func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
