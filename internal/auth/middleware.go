package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyIdentity is the key for the resolved identity in gin context
	ContextKeyIdentity = "authIdentity"
)

// Middleware resolves the bearer token, if any, and stores the
// identity in the request context. It never rejects; RequireAuth does.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw != "" {
			if id, err := m.Resolve(c.Request.Context(), raw); err == nil {
				c.Set(ContextKeyIdentity, id)
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests without a valid identity.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ContextKeyIdentity); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "Bearer token required. Include 'Authorization: Bearer ct_...' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests whose identity lacks the admin claim.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "Bearer token required.",
			})
			return
		}
		if !id.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "permission_denied",
				"message": "Administrative access required.",
			})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the resolved identity, if any.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ContextKeyIdentity)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// CanAccessUser reports whether the caller may read userID's data:
// themselves, or anyone when admin.
func CanAccessUser(c *gin.Context, userID string) bool {
	id, ok := IdentityFrom(c)
	if !ok {
		return false
	}
	return id.UserID == userID || id.IsAdmin()
}
