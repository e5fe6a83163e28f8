package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/campusmart/backend/dto"
	"github.com/campusmart/backend/mailer"
	"github.com/campusmart/backend/services"
	"github.com/campusmart/backend/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Sent for every forgot-password request, whether or not the account exists.
const forgotPasswordMessage = "If an account with that email exists, a password reset link has been sent"

type AuthController struct {
	auth    *services.AuthService
	cookies *utils.CookieManager
	timeout time.Duration
}

func NewAuthController(auth *services.AuthService, cookies *utils.CookieManager, timeout time.Duration) *AuthController {
	return &AuthController{auth: auth, cookies: cookies, timeout: timeout}
}

func (a *AuthController) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), a.timeout)
}

// POST /auth/register
func (a *AuthController) Register() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.RegisterDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequestBody(c)
			return
		}

		ctx, cancel := a.ctx(c)
		defer cancel()

		res, err := a.auth.Register(ctx, body)
		if err != nil {
			respondError(c, err)
			return
		}

		a.cookies.Attach(c.Writer, res.RefreshToken)
		c.JSON(http.StatusCreated, gin.H{
			"message":     "Registration successful",
			"accessToken": res.AccessToken,
			"user":        res.User,
		})
	}
}

// POST /auth/login
func (a *AuthController) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.LoginDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequestBody(c)
			return
		}

		ctx, cancel := a.ctx(c)
		defer cancel()

		res, err := a.auth.Login(ctx, body)
		if err != nil {
			respondError(c, err)
			return
		}

		a.cookies.Attach(c.Writer, res.RefreshToken)
		c.JSON(http.StatusOK, gin.H{
			"message":     "Login successful",
			"accessToken": res.AccessToken,
			"user":        res.User,
		})
	}
}

// GET /auth/refresh
func (a *AuthController) Refresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := a.cookies.Read(c.Request)

		ctx, cancel := a.ctx(c)
		defer cancel()

		accessToken, err := a.auth.Refresh(ctx, token)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"accessToken": accessToken})
	}
}

// POST /auth/logout
func (a *AuthController) Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := a.cookies.Read(c.Request)
		a.cookies.Clear(c.Writer)

		ctx, cancel := a.ctx(c)
		defer cancel()

		// best effort revoke
		if err := a.auth.Logout(ctx, token); err != nil {
			zap.L().Warn("Failed to revoke refresh token on logout",
				zap.Error(err),
				zap.String("requestID", c.GetString("requestID")),
			)
		}

		c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
	}
}

// POST /auth/forgot-password
func (a *AuthController) ForgotPassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ForgotPasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequestBody(c)
			return
		}

		ctx, cancel := a.ctx(c)
		defer cancel()

		err := a.auth.ForgotPassword(ctx, body)

		// A delivery failure only happens for existing accounts, so it is
		// reported in the logs and hidden from the caller.
		var de *mailer.DeliveryError
		if errors.As(err, &de) {
			zap.L().Error("Failed to send password reset email",
				zap.Error(de),
				zap.String("transport", de.Transport),
				zap.Bool("retryable", de.Retryable),
				zap.String("requestID", c.GetString("requestID")),
			)
			err = nil
		}
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
	}
}

// POST /auth/reset-password/:token
func (a *AuthController) ResetPassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ResetPasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequestBody(c)
			return
		}

		ctx, cancel := a.ctx(c)
		defer cancel()

		if err := a.auth.ResetPassword(ctx, c.Param("token"), body); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Password has been reset successfully"})
	}
}
