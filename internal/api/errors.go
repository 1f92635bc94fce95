package api

import (
	"errors"
	"net/http"

	"earnings-service/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps an error kind to its HTTP status
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindArithmetic:
		return http.StatusUnprocessableEntity
	case apperr.KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as JSON with the status its kind maps to
func (h *Handler) writeError(c *gin.Context, message string, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	body := gin.H{
		"error": message,
		"kind":  kind,
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		body["details"] = appErr.Message
	} else {
		body["details"] = err.Error()
	}
	if d := apperr.DetailsOf(err); d != nil {
		body["result"] = d
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(message,
			zap.String("path", c.FullPath()),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   message,
		"kind":    apperr.KindValidation,
		"details": err.Error(),
	})
}
