package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"frameworks/herald/pkg/ctxkeys"
)

// JWTAuthMiddleware validates bearer JWTs and places the actor identity on
// the gin context under the ctxkeys names.
func JWTAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization header", "code": "UNAUTHENTICATED"})
			return
		}

		parts := strings.Split(auth, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header", "code": "UNAUTHENTICATED"})
			return
		}

		token := parts[1]
		claims, err := ValidateJWT(token, secret)
		if err != nil {
			msg := "Invalid JWT token"
			if errors.Is(err, ErrExpiredJWT) {
				msg = "JWT token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "UNAUTHENTICATED"})
			return
		}
		if claims.UserID == "" || claims.Role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is missing user_id or role", "code": "UNAUTHENTICATED"})
			return
		}

		c.Set(string(ctxkeys.KeyUserID), claims.UserID)
		c.Set(string(ctxkeys.KeyEmail), claims.Email)
		c.Set(string(ctxkeys.KeyRole), claims.Role)
		c.Set(string(ctxkeys.KeyAuthType), "jwt")
		c.Set(string(ctxkeys.KeyJWTToken), token)
		c.Next()
	}
}
