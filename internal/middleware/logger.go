package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per request with its status and latency.
// Server errors log at error level and client errors at warn.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		evt := logger.Info()
		switch {
		case status >= 500:
			evt = logger.Error()
		case status >= 400:
			evt = logger.Warn()
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		evt.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Str("ip", c.ClientIP()).
			Int("bytes", c.Writer.Size()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	}
}
