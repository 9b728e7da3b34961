package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys for the operator's claims.
const (
	ContextKeyOperatorID = "operator_id"
	ContextKeyIsAdmin    = "operator_is_admin"
	ContextKeyClaims     = "operator_claims"
)

// Middleware requires a valid operator JWT on the dashboard's control
// endpoints.
func Middleware(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Code, "message": "missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Code, "message": "invalid authorization header format"})
			return
		}

		claims, err := jwtManager.ValidateAccessToken(parts[1])
		if err != nil {
			authErr, ok := err.(Error)
			if !ok {
				authErr = ErrInvalidToken
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": authErr.Code, "message": authErr.Message})
			return
		}

		c.Set(ContextKeyOperatorID, claims.OperatorID)
		c.Set(ContextKeyIsAdmin, claims.IsAdmin)
		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// RequireAdmin ensures the operator session carries the admin flag — used
// by destructive control endpoints (close-all, circuit breaker reset).
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		isAdmin, exists := c.Get(ContextKeyIsAdmin)
		if !exists || !isAdmin.(bool) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrForbidden.Code, "message": "admin access required"})
			return
		}
		c.Next()
	}
}

// GetOperatorID extracts the operator ID from the Gin context.
func GetOperatorID(c *gin.Context) string {
	if id, exists := c.Get(ContextKeyOperatorID); exists {
		return id.(string)
	}
	return ""
}

// GetClaims extracts the full operator claims from the Gin context.
func GetClaims(c *gin.Context) *OperatorClaims {
	if claims, exists := c.Get(ContextKeyClaims); exists {
		return claims.(*OperatorClaims)
	}
	return nil
}

// IsAdmin checks if the current operator session carries the admin flag.
func IsAdmin(c *gin.Context) bool {
	if isAdmin, exists := c.Get(ContextKeyIsAdmin); exists {
		return isAdmin.(bool)
	}
	return false
}
