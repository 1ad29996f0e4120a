package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/id"
	"github.com/kart-io/bhasha/pkg/infra/middleware/common"
	"github.com/kart-io/bhasha/pkg/utils/response"
)

// RateLimiter defines the interface for rate limiting implementations.
type RateLimiter interface {
	// Allow checks if a request with the given key is allowed.
	Allow(ctx context.Context, key string) (bool, error)

	// Reset resets the rate limit counter for the given key.
	Reset(ctx context.Context, key string) error
}

// RateLimitConfig defines the configuration for rate limiting middleware.
type RateLimitConfig struct {
	// Limit is the maximum number of requests allowed within the time window.
	// Default: 10
	Limit int

	// Window is the time window duration for rate limiting.
	// Default: 1 minute
	Window time.Duration

	// KeyFunc extracts the rate limit key.
	// Default: authenticated owner id, falling back to the client IP
	KeyFunc func(c *gin.Context) string

	// OnLimitReached is called when rate limit is exceeded.
	OnLimitReached func(c *gin.Context)

	// Limiter is the rate limiter implementation to use.
	// If nil, an in-memory token bucket limiter is created.
	Limiter RateLimiter
}

// DefaultRateLimitConfig is the default rate limit configuration.
var DefaultRateLimitConfig = RateLimitConfig{
	Limit:  10,
	Window: time.Minute,
}

// RateLimit returns a rate limiting middleware with default configuration.
func RateLimit() gin.HandlerFunc {
	return RateLimitWithConfig(DefaultRateLimitConfig)
}

// RateLimitWithConfig returns a rate limiting middleware with custom configuration.
// Limiter errors are logged and the request is let through.
func RateLimitWithConfig(config RateLimitConfig) gin.HandlerFunc {
	if config.Limit <= 0 {
		config.Limit = DefaultRateLimitConfig.Limit
	}
	if config.Window <= 0 {
		config.Window = DefaultRateLimitConfig.Window
	}
	if config.KeyFunc == nil {
		config.KeyFunc = OwnerOrIPKey
	}
	if config.Limiter == nil {
		config.Limiter = NewMemoryRateLimiter(config.Limit, config.Window)
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)

		allowed, err := config.Limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Errorw("rate limiter error", "error", err.Error(), "key", key)
			c.Next()
			return
		}
		if !allowed {
			if config.OnLimitReached != nil {
				config.OnLimitReached(c)
			}
			c.Header("Retry-After", strconv.Itoa(int(config.Window.Seconds())))
			response.Fail(c, errors.ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

// OwnerOrIPKey 已认证请求按用户限流，匿名请求按客户端 IP 限流。
func OwnerOrIPKey(c *gin.Context) string {
	if owner := common.GetOwnerID(c.Request.Context()); owner != "" {
		return "owner:" + owner
	}
	return "ip:" + c.ClientIP()
}

// MemoryRateLimiter 进程内令牌桶限流，每个 key 一个 rate.Limiter。
// 桶容量为 limit，按 window/limit 的间隔补充令牌。
type MemoryRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*memoryEntry
	limit    int
	window   time.Duration
}

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// maxIdleEntries 超过该数量时清理空闲 key。
const maxIdleEntries = 10000

// NewMemoryRateLimiter creates a new in-memory rate limiter.
func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limiters: make(map[string]*memoryEntry),
		limit:    limit,
		window:   window,
	}
}

// Allow consumes one token for key.
func (m *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.limiters[key]
	if !ok {
		if len(m.limiters) >= maxIdleEntries {
			m.prune(now)
		}
		every := rate.Every(m.window / time.Duration(m.limit))
		entry = &memoryEntry{limiter: rate.NewLimiter(every, m.limit)}
		m.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1), nil
}

// Reset drops the bucket for key.
func (m *MemoryRateLimiter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.limiters, key)
	m.mu.Unlock()
	return nil
}

// prune 删除超过一个窗口未访问的 key，此时桶已补满。
func (m *MemoryRateLimiter) prune(now time.Time) {
	for key, entry := range m.limiters {
		if now.Sub(entry.lastSeen) > m.window {
			delete(m.limiters, key)
		}
	}
}

// RedisRateLimiter implements sliding window rate limiting with Redis sorted sets.
// It is shared by all instances behind a load balancer.
type RedisRateLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
}

// NewRedisRateLimiter creates a new Redis-based rate limiter.
func NewRedisRateLimiter(client redis.UniversalClient, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "bhasha:ratelimit:",
	}
}

// Allow checks if a request with the given key is allowed using Redis.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	redisKey := r.prefix + key

	pipe := r.client.Pipeline()
	minScore := float64(now.Add(-r.window).UnixNano())
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%.0f", minScore))
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: id.New()})
	pipe.Expire(ctx, redisKey, r.window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis pipeline error: %w", err)
	}
	return countCmd.Val() < int64(r.limit), nil
}

// Reset resets the rate limit counter for the given key in Redis.
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
