package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"user-service/pkg/logger"
)

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	RequestsPerSecond float64 // bucket refill rate
	BurstCapacity     int     // bucket size
	Enabled           bool
}

// tokenBucket keeps {last_refill, tokens} per key in a hash and consumes one
// token per call. Returns 1 when the request is allowed, 0 otherwise.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local bucket = redis.call('HMGET', key, 'last_refill', 'tokens')
local last_refill = tonumber(bucket[1]) or now
local tokens = tonumber(bucket[2]) or capacity

local elapsed = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', key, 'last_refill', now, 'tokens', tokens)
redis.call('EXPIRE', key, 60)
return allowed
`)

// RateLimiter returns a Gin middleware enforcing a per-client token bucket
// keyed by method, route and client IP. Redis errors fail open.
func RateLimiter(client *redis.Client, cfg RateLimiterConfig, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled || client == nil {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := fmt.Sprintf("ratelimit:tb:%s:%s:%s", c.Request.Method, route, c.ClientIP())
		now := float64(time.Now().UnixMilli()) / 1000

		allowed, err := tokenBucket.Run(c.Request.Context(), client, []string{key},
			cfg.RequestsPerSecond, cfg.BurstCapacity, now).Int64()
		if err != nil {
			logger.WithContext(c.Request.Context(), log).Warn("rate limiter redis error, allowing request",
				zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if allowed == 0 {
			logger.WithContext(c.Request.Context(), log).Warn("rate limit exceeded",
				zap.String("client_ip", c.ClientIP()), zap.String("route", route))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": fmt.Sprintf("rate limit exceeded: %.2f requests/second (burst %d)", cfg.RequestsPerSecond, cfg.BurstCapacity),
			})
			return
		}

		c.Next()
	}
}
