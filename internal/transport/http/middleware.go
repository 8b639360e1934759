package http

import (
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/nimbusoft/datagate/pkg/logger"
)

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		if status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request.Context(), "request failed",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", status),
				slog.Duration("duration", duration),
			)
		} else {
			logger.InfoContext(c.Request.Context(), "request completed",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", status),
				slog.Duration("duration", duration),
			)
		}
	}
}

// corsMiddleware answers preflight requests directly and stamps the CORS
// headers on every response. The allowed headers always include the identity
// token header and the data engine's own auth headers so browser callers can
// send both.
func corsMiddleware(allowedOrigin, tokenHeader string) gin.HandlerFunc {
	allowHeaders := strings.Join([]string{
		tokenHeader,
		"apikey",
		"Authorization",
		"Content-Type",
	}, ", ")

	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowedOrigin)
		c.Header("Access-Control-Allow-Headers", allowHeaders)
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
