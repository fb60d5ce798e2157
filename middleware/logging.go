package middleware

import (
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"jeoparty/metrics"
	"jeoparty/pkg/logger"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Logging assigns a request id, logs every request and records its metrics.
func Logging(recorder *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := sanitizeRequestID(c.GetHeader(RequestIDHeader))
		c.Header(RequestIDHeader, reqID)
		c.Set(requestIDKey, reqID)

		c.Next()

		duration := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		recorder.RecordHTTPRequest(c.Request.Method, route, status, duration)

		kv := []interface{}{
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", route,
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if status >= 500 {
			logger.Error("Request complete", kv...)
			return
		}
		logger.Info("Request complete", kv...)
	}
}

// RequestID returns the id assigned by Logging.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func sanitizeRequestID(incoming string) string {
	if incoming != "" && requestIDPattern.MatchString(incoming) {
		return incoming
	}
	return uuid.NewString()
}
