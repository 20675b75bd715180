package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimitConfig configures the shared sliding-window limiter.
type RedisRateLimitConfig struct {
	RequestsPerMinute int
	KeyPrefix         string
	KeyFn             KeyFunc
	Now               func() time.Time
}

// slidingWindow trims the window, then records the request when under the
// limit. It returns {allowed, remaining, resetAtMillis}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('PEXPIRE', key, window + 1000)
    return {1, limit - count - 1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local reset_at = 0
if #oldest >= 2 then
    reset_at = tonumber(oldest[2]) + window
end
return {0, 0, reset_at}
`)

// RedisRateLimit limits requests per identity per minute across replicas. A
// nil client disables it, and Redis errors fail open so an outage of the
// limiter never takes the API down.
func RedisRateLimit(rdb redis.Scripter, cfg RedisRateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 120
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "dm:ratelimit:"
	}
	if cfg.KeyFn == nil {
		cfg.KeyFn = KeyByUserOrIP()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	const windowMs = int64(time.Minute / time.Millisecond)
	limit := strconv.Itoa(cfg.RequestsPerMinute)

	return func(c *gin.Context) {
		if rdb == nil || IsRateBypass(c) {
			c.Next()
			return
		}

		now := cfg.Now().UnixMilli()
		res, err := slidingWindow.Run(c.Request.Context(), rdb,
			[]string{cfg.KeyPrefix + cfg.KeyFn(c)},
			cfg.RequestsPerMinute, windowMs, now,
		).Int64Slice()
		if err != nil || len(res) != 3 {
			LoggerFrom(c).Warn().Err(err).Msg("rate limiter unavailable; allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
		if res[0] == 1 {
			c.Next()
			return
		}

		retry := (res[2] - now) / 1000
		if retry < 1 {
			retry = 1
		}
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res[2]/1000, 10))
		c.Header("Retry-After", strconv.FormatInt(retry, 10))
		abortJSON(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
	}
}
