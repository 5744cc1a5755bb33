package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/tasktimer/internal/auth"
	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// Auth verifies the bearer token and stores the caller's user id. Requests
// without a valid token never reach a handler.
func Auth(secret, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			Error(c, http.StatusUnauthorized, CodeAuth, "missing bearer token")
			return
		}
		claims, err := auth.ParseToken(secret, issuer, tokenStr)
		if err != nil {
			slog.Debug("rejected token", "error", err)
			Error(c, http.StatusUnauthorized, CodeAuth, "invalid or expired token")
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// RequestLogger writes one structured line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if uid := currentUserID(c); uid != "" {
			attrs = append(attrs, "user_id", uid)
		}
		switch {
		case status >= http.StatusInternalServerError:
			slog.Error("request", attrs...)
		case status >= http.StatusBadRequest:
			slog.Warn("request", attrs...)
		default:
			slog.Info("request", attrs...)
		}
	}
}
