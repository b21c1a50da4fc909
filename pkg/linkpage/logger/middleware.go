package logger

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKeyUserID is read from the gin context to attribute requests.
// The auth package sets it once a session or token is verified.
const ContextKeyUserID = "user_id"

// Middleware logs one line per request with timing and outcome.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		rawQuery := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		event := Log.Info()
		if status >= 400 {
			event = Log.Warn()
		}
		if status >= 500 {
			event = Log.Error()
		}

		userID := c.GetString(ContextKeyUserID)

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", rawQuery).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("user_id", userID).
			Int("body_size", c.Writer.Size()).
			Msg("request")
	}
}
