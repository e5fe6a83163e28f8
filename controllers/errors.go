package controllers

import (
	"errors"
	"net/http"

	"github.com/campusmart/backend/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusFor(k services.Kind) int {
	switch k {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindConflict:
		return http.StatusConflict
	case services.KindAuthentication:
		return http.StatusUnauthorized
	case services.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the client-safe form of err. Anything that is not a
// *services.Error is treated as internal and never echoed back.
func respondError(c *gin.Context, err error) {
	requestID := c.GetString("requestID")

	var se *services.Error
	if !errors.As(err, &se) {
		se = &services.Error{Kind: services.KindInternal, Message: "Server error", Err: err}
	}

	status := statusFor(se.Kind)
	if status >= http.StatusInternalServerError {
		zap.L().Error("Request failed",
			zap.Error(err),
			zap.String("path", c.FullPath()),
			zap.String("requestID", requestID),
		)
	}

	body := gin.H{"error": se.Message, "requestId": requestID}
	if len(se.Details) > 0 {
		body["details"] = se.Details
	}
	c.JSON(status, body)
}

func badRequestBody(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":     "Invalid request body",
		"requestId": c.GetString("requestID"),
	})
}
