package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tazhate/familyplanner/internal/errdef"
	"github.com/tazhate/familyplanner/internal/logger"
	"github.com/tazhate/familyplanner/internal/metrics"
)

// ErrorHandler turns the last handler error into an error envelope.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		status := http.StatusInternalServerError
		msg := err.Error()
		switch {
		case errdef.IsBadRequest(err):
			status = http.StatusBadRequest
		case errdef.IsNotFound(err):
			status = http.StatusNotFound
		case errdef.IsUnauthorized(err):
			status = http.StatusUnauthorized
		default:
			log.Errorw("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err.Err)
			msg = "internal error"
		}
		c.JSON(status, APIResponse{Success: false, Error: msg})
	}
}

// RequestLogger writes one log line and one metric sample per request.
func RequestLogger(log *logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		log.LogHTTPRequest(c.Request.Method, path, c.ClientIP(), status, float64(elapsed.Microseconds())/1000)
		m.ObserveRequest(c.Request.Method, path, status, elapsed)
	}
}
