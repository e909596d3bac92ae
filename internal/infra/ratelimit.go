package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"linkwatch/internal/config"
)

// fixedWindowLua increments the counter for the current window and returns
// whether the call is allowed. The window key carries its own TTL so a
// crashed process never leaves a permanently-stuck counter behind.
const fixedWindowLua = `
local key   = KEYS[1]
local limit = tonumber(ARGV[1])
local ttlms = tonumber(ARGV[2])

local count = redis.call('INCR', key)
if count == 1 then
  redis.call('PEXPIRE', key, ttlms)
end
if count > limit then
  return 0
end
return 1
`

var fixedWindowScript = redis.NewScript(fixedWindowLua)

// RateLimiter enforces QUEUE_RATE_LIMIT_MAX dispatches per
// QUEUE_RATE_LIMIT_DURATION, shared across every worker process through one
// Redis-resident counter.
type RateLimiter struct {
	client *redis.Client
	max    int64
	window int64 // milliseconds
	key    string
}

// NewRateLimiter builds a RateLimiter bound to the given counter key.
func NewRateLimiter(client *redis.Client, cfg *config.Config, key string) *RateLimiter {
	return &RateLimiter{
		client: client,
		max:    cfg.QueueRateLimitMax,
		window: cfg.QueueRateLimitDurationMs,
		key:    key,
	}
}

// Allow reports whether the caller may proceed under the current window's
// budget. A false return means the caller must back off and retry later; it
// is not an error condition.
func (r *RateLimiter) Allow(ctx context.Context) (bool, error) {
	if r == nil || r.max <= 0 {
		return true, nil
	}

	bucket := time.Now().UnixMilli() / r.window
	windowKey := fmt.Sprintf("%s:%d", r.key, bucket)

	res, err := fixedWindowScript.Run(ctx, r.client, []string{windowKey}, r.max, r.window).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit eval: %w", err)
	}
	return res == 1, nil
}
