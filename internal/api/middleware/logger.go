package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/timmy/memetag/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// LoggerMiddleware returns a Gin middleware that injects a request-scoped logger.
// Parameters:
//   - log: base logger to enrich with request fields.
//
// Returns:
//   - gin.HandlerFunc: middleware handler.
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.New().String()
		}

		reqLog := log.WithFields(logger.Fields{
			logger.FieldRequestID: requestID,
			logger.FieldComponent: "api",
		})
		ctx := reqLog.WithContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Set("logger", reqLog)
		c.Header(requestIDHeader, requestID)

		c.Next()

		// Log the route pattern, not the raw path: asset paths carry bearer tokens.
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		entry := logger.Since(start).
			With(logger.Fields{logger.FieldStatus: c.Writer.Status()}).
			WithSize(int64(c.Writer.Size()))
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn(ctx, "Request failed: method=%s, route=%s, client_ip=%s", c.Request.Method, route, c.ClientIP())
			return
		}
		entry.Info(ctx, "Request completed: method=%s, route=%s, client_ip=%s", c.Request.Method, route, c.ClientIP())
	}
}

// GetLogger extracts logger from Gin context or request context.
func GetLogger(c *gin.Context) *logger.Logger {
	if l, exists := c.Get("logger"); exists {
		if log, ok := l.(*logger.Logger); ok {
			return log
		}
	}
	return logger.FromContext(c.Request.Context())
}
