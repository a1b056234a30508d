package session

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyClaims is the gin context key for validated session claims
	ContextKeyClaims = "sessionClaims"
	// ContextKeyAccountID is the gin context key for the authenticated account id
	ContextKeyAccountID = "authAccountID"
)

// Middleware extracts and validates a bearer session token.
// Sets claims and account id in context if valid; never rejects by itself.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if claims, err := m.Validate(token); err == nil {
				c.Set(ContextKeyClaims, claims)
				c.Set(ContextKeyAccountID, claims.AccountID)
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests without a valid session token.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyClaims); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Session token required. Include 'Authorization: Bearer <token>' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireRole rejects authenticated requests whose role doesn't match.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Session token required.",
			})
			return
		}
		if claims.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Insufficient role for this endpoint.",
			})
			return
		}
		c.Next()
	}
}

// GetClaims returns the validated session claims from context.
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

// AccountID returns the authenticated account id, or empty.
func AccountID(c *gin.Context) string {
	id, exists := c.Get(ContextKeyAccountID)
	if !exists {
		return ""
	}
	return id.(string)
}
