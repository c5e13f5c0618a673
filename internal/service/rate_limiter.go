package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const rateLimitKeyPrefix = "pairing:ratelimit:"

// slidingWindowScript keeps one sorted-set member per admitted request, scored
// in milliseconds. It returns {admitted, resetAtMillis}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local nowMs = tonumber(ARGV[1])
local windowMs = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', nowMs - windowMs)

if redis.call('ZCARD', key) >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    if #oldest == 2 then
        return {0, tonumber(oldest[2]) + windowMs}
    end
    return {0, nowMs + windowMs}
end

redis.call('ZADD', key, nowMs, member)
redis.call('PEXPIRE', key, windowMs + 1000)
return {1, nowMs + windowMs}
`)

// RateLimiter is the Redis-backed sliding window limiter shared by every
// instance of the server. It denies requests when Redis is unreachable.
type RateLimiter struct {
	client *redis.Client
	now    Clock
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

func (rl *RateLimiter) CheckLimit(
	ctx context.Context,
	key string,
	limit int,
	window time.Duration,
) (bool, time.Time) {
	now := rl.now()

	result, err := slidingWindowScript.Run(
		ctx,
		rl.client,
		[]string{rateLimitKeyPrefix + key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil || len(result) != 2 {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("rate limit check failed, denying request")
		return false, now.Add(window)
	}

	return result[0] == 1, time.UnixMilli(result[1])
}
