package handler

import (
	"github.com/gin-gonic/gin"

	apperrors "focusflow/internal/errors"
)

// writeError answers with the error envelope and records apiErr on the
// context so the request logger can report its code and cause.
func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	if apiErr == nil {
		apiErr = apperrors.Internal("")
	}
	_ = c.Error(apiErr)
	c.JSON(apiErr.Status, apiErr.Envelope())
}

func writeInvalidJSON(c *gin.Context) {
	writeError(c, apperrors.InvalidJSON())
}
