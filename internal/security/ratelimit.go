package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateWindow is the fixed counting window. Windows are anchored to first use
// of a key, not calendar-aligned, and bursts straddling a window boundary can
// exceed the nominal rate. Accepted imprecision of fixed-window counting.
const rateWindow = 60 * time.Second

// RateLimiter bounds request frequency per logical key using a fixed window
// counter in redis
type RateLimiter struct {
	client *redis.Client
	limit  int
}

// NewRateLimiter creates a RateLimiter allowing limit requests per window
func NewRateLimiter(client *redis.Client, limit int) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
	}
}

// Allow increments the counter for key and reports whether the request is
// within the limit. The INCR and the first-use EXPIRE are two commands; at
// most one extra request can slip in on that race, which is tolerated.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := fmt.Sprintf("rl:%s", key)

	count, err := l.client.Incr(ctx, bucket).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, bucket, rateWindow).Err(); err != nil {
			return false, fmt.Errorf("rate limit expiry failed: %w", err)
		}
	}

	return count <= int64(l.limit), nil
}
