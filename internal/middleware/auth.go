// CodeLab authentication middleware
// JWT validation and role gating for Gin routes

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"codelab/internal/auth"
)

// RequireAuth validates the bearer token and stores the caller's identity in
// the request context.
func RequireAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "authorization header is required")
			return
		}

		token, err := extractBearerToken(header)
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_name", claims.Name)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequireRole gates a route to callers holding one of the given roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get("role")
		if !exists {
			abortUnauthorized(c, "role not found in context")
			return
		}
		for _, role := range roles {
			if userRole.(string) == role {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "insufficient permissions",
		})
		c.Abort()
	}
}

// UserID returns the authenticated caller's user id.
func UserID(c *gin.Context) uint {
	if v, ok := c.Get("user_id"); ok {
		return v.(uint)
	}
	return 0
}

// Role returns the authenticated caller's role.
func Role(c *gin.Context) string {
	if v, ok := c.Get("role"); ok {
		return v.(string)
	}
	return ""
}

// UserName returns the authenticated caller's display name.
func UserName(c *gin.Context) string {
	if v, ok := c.Get("user_name"); ok {
		return v.(string)
	}
	return ""
}

func extractBearerToken(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errBadAuthHeader
	}
	return parts[1], nil
}

var errBadAuthHeader = errInvalidHeader("authorization header must be 'Bearer <token>'")

type errInvalidHeader string

func (e errInvalidHeader) Error() string { return string(e) }

func abortUnauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   msg,
	})
	c.Abort()
}
