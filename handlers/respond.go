package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stockwave/apperrors"
)

// respondError maps err to its status. Server side failures get a generic
// message; the detail only goes to the log.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	_ = c.Error(err)

	message := "internal error"
	if status < http.StatusInternalServerError {
		if typed := apperrors.Typed(err); typed != nil {
			message = typed.Message
		}
	}

	fields := []zap.Field{
		zap.String("path", c.FullPath()),
		zap.String("code", string(code)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", fields...)
	} else {
		logger.Warn("Request rejected", fields...)
	}

	c.JSON(status, gin.H{"error": message, "code": code})
}
