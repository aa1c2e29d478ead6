package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "focusflow/internal/errors"
)

// RequestLogger writes one structured line per request. Failed requests carry
// the error code, and for server faults the underlying cause.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(started).Milliseconds(),
		}
		if userID := UserID(c); userID != "" {
			attrs = append(attrs, "user_id", userID)
		}
		if last := c.Errors.Last(); last != nil {
			var apiErr *apperrors.APIError
			if errors.As(last.Err, &apiErr) {
				attrs = append(attrs, "error_code", apiErr.Code)
				if cause := apiErr.Unwrap(); cause != nil {
					attrs = append(attrs, "error", cause.Error())
				}
			} else {
				attrs = append(attrs, "error", last.Err.Error())
			}
		}
		switch {
		case status >= 500:
			logger.Error("request failed", attrs...)
		case status >= 400:
			logger.Warn("request rejected", attrs...)
		default:
			logger.Info("request served", attrs...)
		}
	}
}
