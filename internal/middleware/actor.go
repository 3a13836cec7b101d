package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admissions-sync-api/internal/models"
)

// ContextActorKey is the gin context key storing bearer claims.
const ContextActorKey = "currentActor"

const systemActor = "system"

type tokenValidator interface {
	Enabled() bool
	ValidateToken(token string) (*models.ActorClaims, error)
}

// OptionalActor attaches bearer claims when present and valid. Requests
// without a usable token proceed anonymously.
func OptionalActor(validator tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil || !validator.Enabled() {
			c.Next()
			return
		}

		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.Next()
			return
		}

		claims, err := validator.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			_ = c.Error(err)
			c.Next()
			return
		}

		c.Set(ContextActorKey, claims)
		c.Next()
	}
}

// Actor returns the identity attached by OptionalActor, or "system".
func Actor(c *gin.Context) string {
	if v, ok := c.Get(ContextActorKey); ok {
		if claims, ok := v.(*models.ActorClaims); ok {
			if actor := claims.Actor(); actor != "" {
				return actor
			}
		}
	}
	return systemActor
}
