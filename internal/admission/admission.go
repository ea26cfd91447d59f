// Package admission decides whether a visitor may submit another access
// request.  Counts live in Redis in fixed hour and day windows keyed by IP.
package admission

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/document-access-gate/internal/config"
)

// RequestContext describes the submission being judged.
type RequestContext struct {
	IP         string
	DocumentID uint64
	Email      string
}

// Decision is the outcome of Check.  RetryAfter is set when Allowed is false.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// Gate is the admission check handlers call before creating a request.
type Gate interface {
	Check(ctx context.Context, rc RequestContext) (Decision, error)
}

// Open admits everything.
type Open struct{}

func (Open) Check(context.Context, RequestContext) (Decision, error) {
	return Decision{Allowed: true}, nil
}

// Both windows are incremented atomically; a window whose limit is zero is
// skipped.  Returns {hour_count, day_count, hour_ttl_ms, day_ttl_ms}.
var windowScript = redis.NewScript(`
	local hour_limit = tonumber(ARGV[1])
	local day_limit = tonumber(ARGV[2])
	local out = {0, 0, 0, 0}

	if hour_limit > 0 then
		local n = redis.call('INCR', KEYS[1])
		if n == 1 then redis.call('PEXPIRE', KEYS[1], 3600000) end
		out[1] = n
		out[3] = redis.call('PTTL', KEYS[1])
	end
	if day_limit > 0 then
		local n = redis.call('INCR', KEYS[2])
		if n == 1 then redis.call('PEXPIRE', KEYS[2], 86400000) end
		out[2] = n
		out[4] = redis.call('PTTL', KEYS[2])
	end
	return out
`)

// RedisGate counts submissions per IP in Redis.
type RedisGate struct {
	cfg config.AdmissionConfig
	rdb *redis.Client
	log *log.Logger
}

// New returns the gate for cfg.  A disabled config or a nil client yields
// Open.
func New(cfg config.AdmissionConfig, rdb *redis.Client, logger *log.Logger) Gate {
	if !cfg.Enabled || rdb == nil || (cfg.PerHour <= 0 && cfg.PerDay <= 0) {
		return Open{}
	}
	if logger == nil {
		logger = log.New("admission")
	}
	return &RedisGate{cfg: cfg, rdb: rdb, log: logger}
}

func (g *RedisGate) Check(ctx context.Context, rc RequestContext) (Decision, error) {
	ip := strings.TrimSpace(rc.IP)
	if ip == "" {
		ip = "unknown"
	}
	keys := []string{
		strings.Join([]string{g.cfg.Prefix, "hour", ip}, ":"),
		strings.Join([]string{g.cfg.Prefix, "day", ip}, ":"),
	}
	vals, err := windowScript.Run(ctx, g.rdb, keys, g.cfg.PerHour, g.cfg.PerDay).Int64Slice()
	if err != nil || len(vals) != 4 {
		if err == nil {
			err = fmt.Errorf("unexpected script result %v", vals)
		}
		if g.cfg.FailOpen {
			g.log.Warnf("admission check for %s failed, admitting: %v", ip, err)
			return Decision{Allowed: true}, nil
		}
		return Decision{}, fmt.Errorf("admission check: %w", err)
	}

	switch {
	case g.cfg.PerHour > 0 && vals[0] > int64(g.cfg.PerHour):
		g.log.Infof("admission refused for %s: %d requests this hour", ip, vals[0])
		return Decision{Reason: "too many requests this hour, try again later", RetryAfter: ttl(vals[2])}, nil
	case g.cfg.PerDay > 0 && vals[1] > int64(g.cfg.PerDay):
		g.log.Infof("admission refused for %s: %d requests today", ip, vals[1])
		return Decision{Reason: "daily request limit reached, try again tomorrow", RetryAfter: ttl(vals[3])}, nil
	}
	return Decision{Allowed: true}, nil
}

func ttl(ms int64) time.Duration {
	if ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// RetryAfterSeconds renders d for a Retry-After header, rounding up.
func RetryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
