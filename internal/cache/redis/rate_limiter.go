package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// slidingWindowLua keeps one sorted-set member per admitted request, scored
// by its timestamp in microseconds. It returns {allowed, retry_after_us}.
const slidingWindowLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, ARGV[4])
    redis.call('PEXPIRE', key, ARGV[5])
    return {1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local retry = window
if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
end
return {0, retry}
`

const (
	minWaitPoll = 10 * time.Millisecond
	maxWaitPoll = time.Second
)

// RateLimiter implements domain.RateLimiter with a sliding window. The
// verifier paces outbound fetches per host through it.
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying(), script: redis.NewScript(slidingWindowLua), now: time.Now}
}

func rateLimitKey(key string) string { return "ratelimit:" + key }

// Allow admits and counts one request when fewer than limit requests were
// admitted within window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ok, _, err := rl.try(ctx, key, limit, window)
	return ok, err
}

// Wait blocks until a request for key is admitted or ctx is done. It sleeps
// for the window's reported retry delay between attempts.
func (rl *RateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	for {
		ok, retry, err := rl.try(ctx, key, limit, window)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		t := time.NewTimer(min(max(retry, minWaitPoll), maxWaitPoll))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-t.C:
		}
	}
}

func (rl *RateLimiter) try(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if limit <= 0 || window <= 0 {
		return true, 0, nil
	}
	res, err := rl.script.Run(ctx, rl.rdb,
		[]string{rateLimitKey(key)},
		rl.now().UnixMicro(),
		window.Microseconds(),
		limit,
		uuid.NewString(),
		max(window.Milliseconds(), 1),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) < 2 {
		return false, 0, fmt.Errorf("redis: rate limit %s: unexpected result length %d", key, len(res))
	}
	return res[0] == 1, time.Duration(res[1]) * time.Microsecond, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
