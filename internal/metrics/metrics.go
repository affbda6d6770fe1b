// Package metrics provides Prometheus instrumentation for the Lumenpass platform.
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
			Namespace: "lumenpass",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lumenpass",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PaymentIntentsTotal counts payment intents created.
	PaymentIntentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lumenpass",
		Name:      "payment_intents_total",
		Help:      "Total payment intents created.",
	})

	// PaymentsConfirmedTotal counts payments confirmed against on-chain transactions.
	PaymentsConfirmedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lumenpass",
		Name:      "payments_confirmed_total",
		Help:      "Total payments confirmed against on-chain transactions.",
	})

	// PaymentsFailedTotal counts payments marked failed by reconciliation, by reason.
	PaymentsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumenpass",
			Name:      "payments_failed_total",
			Help:      "Total payments marked failed during confirmation, by reason.",
		},
		[]string{"reason"},
	)

	// TicketsIssuedTotal counts tickets issued from confirmed payments.
	TicketsIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lumenpass",
		Name:      "tickets_issued_total",
		Help:      "Total tickets issued.",
	})

	// TicketsRedeemedTotal counts tickets redeemed at the gate.
	TicketsRedeemedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lumenpass",
		Name:      "tickets_redeemed_total",
		Help:      "Total tickets redeemed (valid -> used).",
	})

	// RefundsTotal counts refund attempts by result.
	RefundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumenpass",
			Name:      "refunds_total",
			Help:      "Total per-payment refund attempts by result.",
		},
		[]string{"result"},
	)

	// EscrowsCreatedTotal counts escrow accounts created and funded.
	EscrowsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lumenpass",
		Name:      "escrows_created_total",
		Help:      "Total escrow accounts created and funded.",
	})

	// EscrowsReleasedTotal counts escrow accounts swept to organizers.
	EscrowsReleasedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lumenpass",
		Name:      "escrows_released_total",
		Help:      "Total escrow accounts released (merged) to organizers.",
	})

	// StreamReconnectsTotal counts payment stream reconnect attempts.
	StreamReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lumenpass",
		Name:      "stream_reconnects_total",
		Help:      "Total Horizon payment stream reconnect attempts.",
	})

	// StreamRecordsTotal counts stream records handled by outcome.
	StreamRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lumenpass",
			Name:      "stream_records_total",
			Help:      "Total payment stream records handled, by outcome.",
		},
		[]string{"outcome"},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lumenpass",
		Name:      "active_websocket_clients",
		Help:      "Number of currently connected WebSocket clients.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lumenpass", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lumenpass", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lumenpass", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lumenpass", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PaymentIntentsTotal,
		PaymentsConfirmedTotal,
		PaymentsFailedTotal,
		TicketsIssuedTotal,
		TicketsRedeemedTotal,
		RefundsTotal,
		EscrowsCreatedTotal,
		EscrowsReleasedTotal,
		StreamReconnectsTotal,
		StreamRecordsTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
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
