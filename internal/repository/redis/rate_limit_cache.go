package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"secops-dashboard/internal/client"
	"secops-dashboard/internal/util"
)

const rateLimitPrefix = "rate_limit:"

// slidingWindowScript trims entries older than the window, then admits the
// request only while the remaining count is below the limit.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local current_count = redis.call('ZCARD', key)

if current_count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, tonumber(ARGV[4]))
    return {1, current_count + 1}
end
return {0, current_count}
`

type RateLimitCache struct {
	client *client.RedisClient
	limit  int
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewRateLimitCache(c *client.RedisClient, limit int, window time.Duration, logger *zap.Logger) *RateLimitCache {
	return &RateLimitCache{
		client: c,
		limit:  limit,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// Allow records one request for key and reports whether it is inside the
// limit along with the number of requests counted in the current window.
func (c *RateLimitCache) Allow(ctx context.Context, key string) (bool, int, error) {
	if c.limit <= 0 {
		return true, 0, nil
	}
	now := c.now()
	nowMS := now.UnixMilli()
	windowStart := nowMS - c.window.Milliseconds()
	member := strconv.FormatInt(now.UnixNano(), 10)

	result, err := c.client.Eval(ctx, slidingWindowScript, []string{rateLimitPrefix + key},
		nowMS, windowStart, c.limit, c.window.Milliseconds(), member)
	if err != nil {
		c.logger.Error("sliding window rate limit failed",
			util.String("key", key),
			util.Int("limit", c.limit),
			util.Duration("window", c.window),
			util.ErrorField(err))
		return false, 0, fmt.Errorf("failed to execute sliding window rate limit: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected result format from sliding window script")
	}
	allowed, _ := values[0].(int64)
	count, _ := values[1].(int64)

	c.logger.Debug("rate limit check",
		util.String("key", key),
		util.Bool("allowed", allowed == 1),
		util.Int("count", int(count)),
		util.Int("limit", c.limit))

	return allowed == 1, int(count), nil
}

// RetryAfter returns the key's remaining expiry, falling back to the window.
func (c *RateLimitCache) RetryAfter(ctx context.Context, key string) time.Duration {
	ttl, err := c.client.TTL(ctx, rateLimitPrefix+key)
	if err != nil || ttl <= 0 {
		return c.window
	}
	return ttl
}
