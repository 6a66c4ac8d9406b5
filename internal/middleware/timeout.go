// Package middleware holds the gin middleware shared by every route.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Timeout attaches a deadline of d to the request context. The chain runs on
// the request goroutine, so a handler blocked on something that ignores its
// context is not interrupted.
//
// When the deadline fires and nothing was written, the client gets a 503.
// Session operations wait on their event loop with this context, so a stuck
// loop surfaces here.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() != nil && !c.Writer.Written() {
			log.Warn().
				Str("method", c.Request.Method).
				Str("path", c.FullPath()).
				Dur("timeout", d).
				Msg("request timed out")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "request timed out",
			})
		}
	}
}
