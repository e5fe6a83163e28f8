// Package router wires the HTTP surface: global middleware, the /auth
// endpoints and the authenticated /users endpoints.
package router

import (
	"net/http"
	"time"

	"github.com/campusmart/backend/config"
	"github.com/campusmart/backend/controllers"
	"github.com/campusmart/backend/middleware"
	"github.com/campusmart/backend/utils"
	ginzap "github.com/gin-contrib/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxBodyBytes = 1 << 20

type Deps struct {
	Config  *config.Config
	Auth    *controllers.AuthController
	Tokens  *utils.TokenIssuer
	Limiter *middleware.RateLimiter
}

func NewRouter(d Deps) *gin.Engine {
	allowedOrigins := map[string]bool{}
	for _, origin := range d.Config.AllowedOrigins {
		allowedOrigins[origin] = true
	}

	r := gin.New()
	r.Use(
		cors.New(cors.Config{
			AllowOriginFunc: func(origin string) bool {
				return allowedOrigins[origin]
			},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", "Retry-After", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: time.RFC3339,
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.URL.Path == "/ping"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
	)

	r.HandleMethodNotAllowed = true

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	throttle := d.Limiter.Handler()

	auth := r.Group("/auth", middleware.BodySizeLimiter(maxBodyBytes))
	{
		auth.POST("/register", d.Auth.Register())
		auth.POST("/login", throttle, d.Auth.Login())
		auth.GET("/refresh", d.Auth.Refresh())
		auth.POST("/logout", d.Auth.Logout())
		auth.POST("/forgot-password", throttle, d.Auth.ForgotPassword())
		auth.POST("/reset-password/:token", throttle, d.Auth.ResetPassword())
	}

	users := r.Group("/users", middleware.BodySizeLimiter(maxBodyBytes), middleware.AuthMiddleware(d.Tokens))
	{
		users.GET("/me", d.Auth.Me())
		users.POST("/me/password", d.Auth.ChangeMyPassword())
	}

	return r
}
