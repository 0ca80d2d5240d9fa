package middlewares

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const rateLimitPrefix = "ratelimit:"

// RateLimiter is a fixed-window request counter per client IP, shared through Redis.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	logger logrus.FieldLogger
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration, logger logrus.FieldLogger) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// Middleware counts the request and aborts with 429 once the window is exhausted.
// A nil limiter or Redis client lets everything through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.client == nil || rl.limit <= 0 {
			c.Next()
			return
		}
		key := rateLimitPrefix + c.FullPath() + ":" + c.ClientIP()
		ctx := c.Request.Context()

		count, err := rl.client.Incr(ctx, key).Result()
		if err != nil {
			// Redis trouble must not take the endpoint down.
			rl.logger.WithFields(logrus.Fields{"field": "rateLimiter", "key": key}).Warn("rate limit check skipped: " + err.Error())
			c.Next()
			return
		}
		if count == 1 {
			if err := rl.client.Expire(ctx, key, rl.window).Err(); err != nil {
				rl.logger.WithFields(logrus.Fields{"field": "rateLimiter", "key": key}).Warn("failed to set rate limit window: " + err.Error())
			}
		}

		if count > rl.limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
			})
			return
		}
		c.Next()
	}
}
