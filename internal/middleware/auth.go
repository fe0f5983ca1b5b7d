package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echoforum/internal/auth"
	"github.com/lalith-99/echoforum/internal/models"
)

// Context keys for the caller identity stored in gin.Context.
const (
	ContextKeyTenantID = "tenant_id"
	ContextKeyAuthor   = "author"
)

// AuthMiddleware validates the bearer token and stores the caller's tenant
// and author identity on the request. Invalid tokens end the chain with 401.
//
// How it fits in:
//   - main.go mounts it on the /v1 group, so every forum route runs it and
//     /v1/health (registered outside the group) does not.
//   - Handlers read the identity back with GetTenantID and GetAuthor; they
//     never parse the token themselves.
//   - The tenant set here becomes the partition key of every store call the
//     request makes. No handler accepts a tenant from the URL or body.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}

		claims, err := auth.ParseToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyTenantID, claims.TenantID)
		c.Set(ContextKeyAuthor, claims.Author())
		c.Next()
	}
}

// RequireExpert lets only expert callers through. It must run after
// AuthMiddleware.
//
// It guards the dashboard, read tracking and admin routes. Editing and
// deleting a message are not gated here: the author may do those too, which
// needs the message itself, so forum.Service.CanModify decides.
func RequireExpert() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetAuthor(c).Role != models.RoleExpert {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "expert role required",
			})
			return
		}
		c.Next()
	}
}

// GetTenantID returns the caller's tenant, or "" outside AuthMiddleware.
func GetTenantID(c *gin.Context) string {
	return c.GetString(ContextKeyTenantID)
}

func GetAuthor(c *gin.Context) models.Author {
	val, exists := c.Get(ContextKeyAuthor)
	if !exists {
		return models.Author{}
	}
	author, ok := val.(models.Author)
	if !ok {
		return models.Author{}
	}
	return author
}
