package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLogMiddleware logs HTTP access using the request-scoped logger
// previously attached by RequestLoggerMiddleware. The authenticated user
// id is included when the auth middleware ran earlier in the chain, so
// entitlement denials and billing calls can be traced per user from the
// access log alone.
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		// pick request logger if present
		l, ok := c.Get("logger")
		if !ok {
			return
		}
		log, ok := l.(*zap.SugaredLogger)
		if !ok || log == nil {
			return
		}

		fields := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if uid := c.GetString("user_id"); uid != "" {
			fields = append(fields, "user_id", uid)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}
		log.Infow("http_access", fields...)
	}
}
