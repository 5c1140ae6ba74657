package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Amit00008/solana-chess/domain/ratelimit"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims a sorted set of timestamps to the window, then either
// records the action or reports how long until the oldest entry expires.
// Returns {allowed, remaining, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local counter_key = KEYS[2]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_size_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)

	if count < limit then
		local counter = redis.call('INCR', counter_key)
		redis.call('ZADD', key, now, now .. ':' .. counter)
		redis.call('PEXPIRE', key, window_size_ms)
		redis.call('PEXPIRE', counter_key, window_size_ms)
		return {1, limit - count - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry_after = 0
	if #oldest >= 2 then
		retry_after = oldest[2] + window_size_ms - now
	end
	return {0, 0, retry_after}
`)

// RedisLimiter implements a sliding window limiter shared through Redis, so several
// server processes behind one load balancer count against the same windows.
type RedisLimiter struct {
	client *redis.Client
	policy ratelimit.Policy
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, policy ratelimit.Policy, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		policy: policy,
		prefix: prefix,
	}
}

// Allow implements ratelimit.Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, kind ratelimit.Kind, key string) (*ratelimit.Result, error) {
	cfg, err := l.policy.Lookup(kind)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	// ZREMRANGEBYSCORE is inclusive, so everything at least WindowSize old is dropped.
	windowStart := now.Add(-cfg.WindowSize)
	redisKey := l.prefix + string(kind) + ":" + key

	result, err := slidingWindowScript.Run(ctx, l.client, []string{redisKey, redisKey + ":counter"},
		now.UnixMilli(),
		windowStart.UnixMilli(),
		cfg.RequestsPerWindow,
		cfg.WindowSize.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to run rate limit script: %w", err)
	}

	if len(result) < 3 {
		return nil, fmt.Errorf("unexpected result length: %d", len(result))
	}
	allowedVal, ok := result[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected type for allowed: %T", result[0])
	}
	remainingVal, ok := result[1].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected type for remaining: %T", result[1])
	}
	retryAfterMs, ok := result[2].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected type for retry_after: %T", result[2])
	}

	res := &ratelimit.Result{
		Allowed:   allowedVal == 1,
		Remaining: int(remainingVal),
	}
	if !res.Allowed && retryAfterMs > 0 {
		res.RetryAfter = time.Duration(retryAfterMs) * time.Millisecond
	}
	return res, nil
}

// Close releases any resources (the Redis client is owned by the module).
func (l *RedisLimiter) Close() error {
	return nil
}
