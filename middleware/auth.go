package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/shopswift/storefront/common/errors"
	"github.com/shopswift/storefront/services"
)

const (
	UserContextKey  = "userID"
	EmailContextKey = "userEmail"
	RoleContextKey  = "userRole"
)

// TokenParser validates access tokens. *services.TokenService satisfies it.
type TokenParser interface {
	ParseAccessToken(tokenStr string) (*services.Principal, error)
}

// Auth requires a valid bearer access token and stores its principal on the context.
func Auth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			apperrors.Respond(c, apperrors.ErrUnauthorized.WithMessage("missing bearer token"))
			return
		}

		principal, err := parser.ParseAccessToken(strings.TrimSpace(token))
		if err != nil {
			apperrors.Respond(c, err)
			return
		}

		c.Set(UserContextKey, principal.UserID)
		c.Set(EmailContextKey, principal.Email)
		c.Set(RoleContextKey, principal.Role)
		c.Next()
	}
}

// RequireRole lets the request through only when the authenticated role is
// one of roles. Must run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(RoleContextKey)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		apperrors.Respond(c, apperrors.ErrForbidden)
	}
}

func GetUserID(c *gin.Context) (uuid.UUID, error) {
	if val, ok := c.Get(UserContextKey); ok {
		if id, ok := val.(uuid.UUID); ok && id != uuid.Nil {
			return id, nil
		}
	}
	return uuid.Nil, errors.New("user ID not found in context")
}
