package handlers

import (
	"errors"
	"net/http"

	"github.com/yYagoKn/drp/internal/services"

	"github.com/gin-gonic/gin"
)

func (h *Handler) abortWithError(c *gin.Context, err error) {
	var se *services.Error
	if !errors.As(err, &se) {
		h.logger.Error("Unhandled request error", "path", c.Request.URL.Path, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal",
			"message": "internal error",
		})
		return
	}

	status := http.StatusInternalServerError
	switch se.Kind {
	case services.KindValidation:
		status = http.StatusBadRequest
	case services.KindVerification:
		status = http.StatusForbidden
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":   string(se.Kind),
		"message": se.Reason,
	})
}
