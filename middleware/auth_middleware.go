package middleware

import (
	"net/http"
	"strings"

	"github.com/campusmart/backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware requires a valid access token in the Authorization header
// and exposes its subject as "userID" and "email" in the gin context.
func AuthMiddleware(tokens *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			abort(c, http.StatusUnauthorized, "Missing token")
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		claims, err := tokens.VerifyAccessToken(tokenStr)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("email", claims.Email)
		c.Next()
	}
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":     msg,
		"requestId": c.GetString("requestID"),
	})
}
