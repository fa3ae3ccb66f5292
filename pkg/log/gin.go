package log

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// GinMiddleware injects a request-scoped logger into the request context and
// logs the completed request. The operator identity set by the auth
// middleware is attached when present.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		child, reqID := requestLogger(logger, c.GetHeader(headerRequestID), c.Request.Method, path, c.ClientIP())

		c.Header(headerRequestID, reqID)
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), child))

		c.Next()

		status := c.Writer.Status()
		evt := completionEvent(&child, c.Request.URL.Path, status).
			Int(FieldStatus, status).
			Float64(FieldLatency, float64(time.Since(start).Milliseconds()))
		if operatorID := c.GetString(FieldOperatorID); operatorID != "" {
			evt = evt.Str(FieldOperatorID, operatorID)
		}
		if role := c.GetString(FieldRole); role != "" {
			evt = evt.Str(FieldRole, role)
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}
		evt.Msg("request completed")
	}
}
