package gateway

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torbobase_gateway_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "torbobase_gateway_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	iamDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torbobase_iam_check_total",
		Help: "Total IAM access checks by decision.",
	}, []string{"decision"})

	delegationOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torbobase_delegation_outcomes_total",
		Help: "Total cross-node delegation outcomes by kind.",
	}, []string{"kind"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request
// latency and status metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler serves the Prometheus exposition format.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordIAMCheck records an IAM access-check decision.
func RecordIAMCheck(allowed bool) {
	if allowed {
		iamDenialsTotal.WithLabelValues("allow").Inc()
	} else {
		iamDenialsTotal.WithLabelValues("deny").Inc()
	}
}

// RecordDelegationOutcome records a delegation lifecycle event reaching the
// gateway's wire endpoints (received, rejected, completed, failed).
func RecordDelegationOutcome(kind string) {
	delegationOutcomesTotal.WithLabelValues(kind).Inc()
}
