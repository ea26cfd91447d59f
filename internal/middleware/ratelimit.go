package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/document-access-gate/internal/config"
)

// takeToken keeps one bucket per key as a hash {n, t}: the tokens left and
// the time of the last whole refill.  It returns {allowed, left, wait_ms}.
var takeToken = redis.NewScript(`
local cap, step, every, now, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local n = tonumber(redis.call('HGET', KEYS[1], 'n') or cap)
local t = tonumber(redis.call('HGET', KEYS[1], 't') or now)
local ticks = math.floor((now - t) / every)
if ticks > 0 then
	n = math.min(cap, n + ticks * step)
	t = t + ticks * every
end
local ok, wait = 0, 0
if n >= 1 then
	ok, n = 1, n - 1
else
	wait = every - (now - t)
end
redis.call('HSET', KEYS[1], 'n', n, 't', t)
redis.call('PEXPIRE', KEYS[1], ttl)
return {ok, n, wait}
`)

// NewTokenBucket throttles the routes it wraps.  Visitor routes are where
// hashes and action tokens get guessed, so that is where it is mounted.
// A Redis failure lets the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			res, err := takeToken.Run(c.Request().Context(), rdb, []string{key},
				cfg.Capacity, cfg.RefillTokens, cfg.RefillInterval.Milliseconds(),
				time.Now().UnixMilli(), cfg.TTL.Milliseconds()).Int64Slice()
			if err != nil || len(res) != 3 {
				c.Logger().Warnf("rate limit %s unavailable: %v", key, err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
			if res[0] == 1 {
				return next(c)
			}

			wait := (res[2] + 999) / 1000
			if wait < 1 {
				wait = 1
			}
			h.Set("Retry-After", strconv.FormatInt(wait, 10))
			c.Logger().Infof("rate limited %s for %ds", key, wait)
			if strings.HasPrefix(c.Path(), "/v1/") {
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too_many_requests", "retry_after": wait})
			}
			return c.String(http.StatusTooManyRequests, "Too many requests, please wait and try again.")
		}
	}
}

func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()
	var b strings.Builder
	b.WriteString(cfg.Prefix)
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		b.WriteString(":ip:" + ip)
	case "route":
		b.WriteString(":route:" + route)
	case "ip_user":
		b.WriteString(":ip:" + ip + ":who:" + callerKey(c))
	default:
		b.WriteString(":ip:" + ip + ":route:" + route)
	}
	return b.String()
}
