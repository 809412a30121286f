// Package metrics holds the Prometheus collectors for the HTTP adapter, the
// session state machine and the expiry sweeper.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	// SessionTransitions counts applied status transitions by edge and by the
	// path that caused them.
	SessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_session_transitions_total",
			Help: "Applied exam session status transitions",
		},
		[]string{"from", "to", "source"},
	)

	SweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_sweep_runs_total",
			Help: "Expiry sweep ticks by outcome",
		},
		[]string{"outcome"},
	)

	SweepSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_sweep_sessions_total",
			Help: "Sessions visited by the expiry sweeper by result",
		},
		[]string{"result"},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "expiry_sweep_duration_seconds",
			Help:    "Duration of expiry sweep ticks",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Sweep run outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeOverlap    = "overlap"
	OutcomeLockHeld   = "lock_held"
	OutcomeLockFailed = "lock_failed"
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			SessionTransitions,
			SweepRuns,
			SweepSessions,
			SweepDuration,
		)
	})
}

// RecordTransition increments the transition counter for one applied edge.
func RecordTransition(from, to, source string) {
	SessionTransitions.WithLabelValues(from, to, source).Inc()
}

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

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
