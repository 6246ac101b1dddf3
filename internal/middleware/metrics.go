package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 7), // 100B to 100MB
		},
		[]string{"method", "path"},
	)

	activeRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Number of currently active HTTP requests",
		},
	)

	messagesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of chat messages sent",
		},
	)

	attachmentBytesStreamed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_attachment_bytes_streamed_total",
			Help: "Total attachment bytes streamed to clients",
		},
	)

	wsConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections_active",
			Help: "Number of currently open WebSocket connections",
		},
	)
)

// Metrics returns a gin middleware that collects Prometheus metrics
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip metrics endpoint itself
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		activeRequests.Inc()

		c.Next()

		activeRequests.Dec()
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		// Use the route template to avoid high-cardinality labels
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
		httpResponseSize.WithLabelValues(c.Request.Method, path).Observe(float64(c.Writer.Size()))
	}
}

// CountMessageSent increments the sent-message counter
func CountMessageSent() {
	messagesSentTotal.Inc()
}

// CountAttachmentBytes adds streamed bytes to the attachment counter
func CountAttachmentBytes(n int64) {
	if n > 0 {
		attachmentBytesStreamed.Add(float64(n))
	}
}

// WSConnectionOpened increments the WebSocket connection gauge
func WSConnectionOpened() {
	wsConnectionsActive.Inc()
}

// WSConnectionClosed decrements the WebSocket connection gauge
func WSConnectionClosed() {
	wsConnectionsActive.Dec()
}
