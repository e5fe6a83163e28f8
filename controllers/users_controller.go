package controllers

import (
	"net/http"

	"github.com/campusmart/backend/dto"
	"github.com/campusmart/backend/services"
	"github.com/gin-gonic/gin"
)

// GET /users/me
func (a *AuthController) Me() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			respondError(c, services.ErrUnauthenticated)
			return
		}

		ctx, cancel := a.ctx(c)
		defer cancel()

		user, err := a.auth.Profile(ctx, userID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// POST /users/me/password
func (a *AuthController) ChangeMyPassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ChangeMyPasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequestBody(c)
			return
		}

		userID := c.GetString("userID")
		if userID == "" {
			respondError(c, services.ErrUnauthenticated)
			return
		}

		ctx, cancel := a.ctx(c)
		defer cancel()

		if err := a.auth.ChangePassword(ctx, userID, body); err != nil {
			respondError(c, err)
			return
		}

		// Earlier refresh tokens are revoked; the client logs in again.
		a.cookies.Clear(c.Writer)
		c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
	}
}
