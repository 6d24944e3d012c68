package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nimbuslab/crewbase/internal/auth/jwt"
)

// ClaimsKey is the gin context key holding the authenticated claims.
const ClaimsKey = "claims"

// JWTAuthMiddleware creates a middleware that validates bearer tokens.
func JWTAuthMiddleware(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := jwtService.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// ClaimsFromContext returns the authenticated claims, or nil on an
// unauthenticated request.
func ClaimsFromContext(c *gin.Context) *jwt.Claims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, ok := v.(*jwt.Claims)
	if !ok {
		return nil
	}
	return claims
}
