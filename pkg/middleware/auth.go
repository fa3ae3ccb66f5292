package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-stage/pkg/jwt"
	"github.com/weiawesome/wes-io-stage/pkg/response"
)

const (
	OperatorIDKey = "operator_id"
	RoleKey       = "role"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates session tokens.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware validates control-session tokens.
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// RequireAuth returns a Gin middleware that validates bearer tokens.
// When roles is non-empty the token's role must be one of them.
func (m *AuthMiddleware) RequireAuth(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Unauthorized(c, "invalid authorization format")
			c.Abort()
			return
		}

		claims, err := m.validator.ValidateToken(strings.TrimPrefix(authHeader, BearerPrefix))
		if err != nil {
			msg := "invalid token"
			switch {
			case errors.Is(err, jwt.ErrExpiredToken):
				msg = "session expired"
			case errors.Is(err, jwt.ErrRevokedToken):
				msg = "session revoked"
			}
			response.Unauthorized(c, msg)
			c.Abort()
			return
		}

		if len(roles) > 0 && !contains(roles, claims.Role) {
			response.Forbidden(c, "role not permitted")
			c.Abort()
			return
		}

		c.Set(OperatorIDKey, claims.OperatorID)
		c.Set(RoleKey, claims.Role)

		c.Next()
	}
}

// GetOperatorID extracts the operator ID from Gin context.
func GetOperatorID(c *gin.Context) string {
	if id, exists := c.Get(OperatorIDKey); exists {
		return id.(string)
	}
	return ""
}

// GetRole extracts the session role from Gin context.
func GetRole(c *gin.Context) string {
	if role, exists := c.Get(RoleKey); exists {
		return role.(string)
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
