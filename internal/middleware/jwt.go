package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
	// ContextActor is the key for the models.Actor built from the token.
	ContextActor = "actor"
)

// TokenValidator turns a bearer token into the calling actor.
type TokenValidator interface {
	Actor(token string) (models.Actor, error)
}

// JWT returns a middleware that validates JWT and sets the actor in context.
func JWT(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		actor, err := tokens.Actor(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		SetActor(c, actor)
		c.Next()
	}
}

// SetActor stores the actor and its individual claims in the gin context.
func SetActor(c *gin.Context, actor models.Actor) {
	c.Set(ContextActor, actor)
	c.Set(ContextUserID, actor.UserID)
	c.Set(ContextUserRole, string(actor.Role))
	c.Set(ContextUserEmail, actor.Email)
}

// ActorFrom returns the actor set by JWT. The zero Actor is returned when absent.
func ActorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(ContextActor); ok {
		if a, ok := v.(models.Actor); ok {
			return a
		}
	}
	return models.Actor{}
}

// ParamUUID parses a path parameter as UUID, writing a 400 on failure.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
