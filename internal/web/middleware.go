package web

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gtonic/nfl-mcp-sub001/internal/metrics"
)

// RequestLogging wraps every inbound request: it assigns a request ID, times
// the request, logs it, and feeds a counter and a timing into the collector.
// The route template is used as the path label to keep label cardinality
// bounded regardless of path parameters.
func RequestLogging(logger *logrus.Logger, collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := map[string]string{
			"method": c.Request.Method,
			"path":   path,
			"status": statusClass(status),
		}
		collector.IncrementCounter("http_requests_total", 1, labels)
		collector.RecordTiming("http_request_duration_ms", duration, map[string]string{
			"method": c.Request.Method,
			"path":   path,
		})

		logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"duration":   duration,
		}).Info("Request handled")
	}
}

// RecoveryHandler converts panics into 500 responses instead of crashing the
// process
func RecoveryHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"panic": r,
					"path":  c.Request.URL.Path,
				}).Error("Recovered from panic in handler")
				c.AbortWithStatusJSON(500, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

// statusClass buckets a status code (2xx, 4xx, ...) to bound label cardinality
func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
