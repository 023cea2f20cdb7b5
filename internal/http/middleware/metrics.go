package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedPath is the route label of requests no route matched. Raw paths
// carry session IDs and phone numbers, so they never become label values.
const unmatchedPath = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_inflight",
		Help: "HTTP requests being served.",
	})

	// Chat history pages and image uploads dominate the upper buckets.
	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "HTTP response body size by method and route.",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8), // 256B .. 4MiB
	}, []string{"method", "path"})

	rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected with 429, by limiter.",
	}, []string{"limiter"})

	idemReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_idempotent_replays_total",
		Help: "Requests recognised as replays of a completed Idempotency-Key.",
	})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, rateLimited, idemReplays)
}

// Metrics records request count, latency, size and concurrency, labelled by
// the registered route pattern.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInflight.Inc()
		start := time.Now()

		defer func() {
			httpInflight.Dec()

			method, path := c.Request.Method, routeLabel(c)
			httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
			httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			// -1 when nothing was written or the connection was hijacked
			if n := c.Writer.Size(); n >= 0 {
				httpRespSize.WithLabelValues(method, path).Observe(float64(n))
			}
		}()

		c.Next()
	}
}

func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedPath
}
