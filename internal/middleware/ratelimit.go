package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	redispkg "github.com/aura-crm/backend/pkg/redis"
	"github.com/aura-crm/backend/pkg/response"
)

const loginWindow = time.Minute

// RateLimitLogin limits login attempts per client IP using a Redis counter.
// A Redis failure lets the request through.
func RateLimitLogin(client *redis.Client, limit int, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || limit <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		count, err := redispkg.IncrWithTTL(ctx, client, "rl:login:"+c.ClientIP(), loginWindow)
		if err != nil {
			logger.Warn("login rate limit unavailable", zap.Error(err))
			c.Next()
			return
		}
		if count > int64(limit) {
			response.TooManyRequests(c, "too many login attempts, try again in a minute")
			c.Abort()
			return
		}
		c.Next()
	}
}
