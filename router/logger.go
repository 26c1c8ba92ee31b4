package router

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger logs method, path, status and latency.
func Logger(logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With(slog.String("component", "http"))
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		switch status := c.Writer.Status(); {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			attrs = append(attrs, slog.String("errors", errs))
		}
		logger.Log(c.Request.Context(), level, "request", attrs...)
	}
}
