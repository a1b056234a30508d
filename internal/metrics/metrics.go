// Package metrics provides Prometheus instrumentation for the Votegate platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "votegate",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "votegate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// OTPIssuedTotal counts one-time passcodes issued.
	OTPIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "votegate",
		Name:      "otp_issued_total",
		Help:      "Total one-time passcodes issued.",
	})

	// OTPVerificationsTotal counts OTP verification attempts by result.
	OTPVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "votegate",
			Name:      "otp_verifications_total",
			Help:      "Total OTP verification attempts by result.",
		},
		[]string{"result"},
	)

	// AccountLockoutsTotal counts accounts locked after repeated failures.
	AccountLockoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "votegate",
		Name:      "account_lockouts_total",
		Help:      "Total account lockouts triggered.",
	})

	// VotesTotal counts ballot submissions by outcome.
	VotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "votegate",
			Name:      "votes_total",
			Help:      "Total ballot submissions by outcome.",
		},
		[]string{"outcome"},
	)

	// RiskDecisionsTotal counts fraud-risk decisions by tier.
	RiskDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "votegate",
			Name:      "risk_decisions_total",
			Help:      "Total fraud-risk decisions by tier.",
		},
		[]string{"tier"},
	)

	// RiskScore observes the distribution of computed fraud probabilities.
	RiskScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "votegate",
		Name:      "risk_score",
		Help:      "Distribution of computed fraud probabilities.",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	// AnomalyScansTotal counts completed anomaly scans by result.
	AnomalyScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "votegate",
			Name:      "anomaly_scans_total",
			Help:      "Total anomaly scans by result.",
		},
		[]string{"result"},
	)

	// AnomaliesFlaggedTotal counts behavioral log entries flagged as suspicious.
	AnomaliesFlaggedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "votegate",
		Name:      "anomalies_flagged_total",
		Help:      "Total behavioral log entries flagged as suspicious.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "votegate",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// ModelLoaded reports whether a classifier artifact is currently loaded.
	ModelLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "votegate",
		Name:      "model_loaded",
		Help:      "1 if a classifier artifact is loaded, 0 otherwise.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "votegate", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "votegate", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "votegate", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "votegate", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "votegate", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "votegate", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		OTPIssuedTotal,
		OTPVerificationsTotal,
		AccountLockoutsTotal,
		VotesTotal,
		RiskDecisionsTotal,
		RiskScore,
		AnomalyScansTotal,
		AnomaliesFlaggedTotal,
		ActiveWebSocketClients,
		ModelLoaded,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
