package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/pkg/clientip"
)

const (
	// RateLimitWindow is 120 seconds
	RateLimitWindow = 120 * time.Second
	// RateLimitMaxRequests is the maximum number of requests allowed in the window
	RateLimitMaxRequests = 25
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting
	RateLimitKeyPrefix = "ratelimit:"
	// BlockedIPKeyPrefix is the Redis key prefix for blocked IPs
	BlockedIPKeyPrefix = "blocked_ip:"
	// BlockedIPDuration is how long an IP stays blocked (24 hours)
	BlockedIPDuration = 24 * time.Hour
)

// RedisRateLimiter is a fixed-window counter shared by every instance. An IP
// that exceeds the window is blocked for BlockedIPDuration.
type RedisRateLimiter struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisRateLimiter(client *redis.Client, logger *zap.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, logger: logger}
}

// Middleware counts the request against the client IP. Redis failures fail open.
func (l *RedisRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ipAddress := clientip.RealClientIP(r)
		ctx := r.Context()

		blocked, err := l.IsBlocked(ctx, ipAddress)
		if err == nil && blocked {
			tooManyRequests(w, "Your IP has been temporarily blocked due to excessive requests. Please try again later.")
			return
		}

		rateLimitKey := RateLimitKeyPrefix + ipAddress
		pipe := l.client.TxPipeline()
		incr := pipe.Incr(ctx, rateLimitKey)
		pipe.ExpireNX(ctx, rateLimitKey, RateLimitWindow)
		if _, err := pipe.Exec(ctx); err != nil {
			l.logger.Warn("Rate limit counter unavailable", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		count := int(incr.Val())
		if count > RateLimitMaxRequests {
			if err := l.client.Set(ctx, BlockedIPKeyPrefix+ipAddress, "1", BlockedIPDuration).Err(); err != nil {
				l.logger.Warn("Failed to block IP", zap.String("ip", ipAddress), zap.Error(err))
			} else {
				l.logger.Info("Blocked IP after rate limit", zap.String("ip", ipAddress))
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(fmt.Sprintf(`{"success":false,"message":"Rate limit exceeded. Your IP has been temporarily blocked. Please try again later.","retry_after":%d}`, int(RateLimitWindow.Seconds()))))
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(RateLimitMaxRequests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(RateLimitMaxRequests-count))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(RateLimitWindow).Unix(), 10))

		next.ServeHTTP(w, r)
	})
}

// Unblock removes an IP from the blocked list (admin function).
func (l *RedisRateLimiter) Unblock(ctx context.Context, ipAddress string) error {
	return l.client.Del(ctx, BlockedIPKeyPrefix+ipAddress).Err()
}

// IsBlocked checks if an IP is currently blocked.
func (l *RedisRateLimiter) IsBlocked(ctx context.Context, ipAddress string) (bool, error) {
	count, err := l.client.Exists(ctx, BlockedIPKeyPrefix+ipAddress).Result()
	return count > 0, err
}

// Blocked lists the currently blocked IPs.
func (l *RedisRateLimiter) Blocked(ctx context.Context) ([]string, error) {
	var ips []string
	iter := l.client.Scan(ctx, 0, BlockedIPKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ips = append(ips, iter.Val()[len(BlockedIPKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ips, nil
}
