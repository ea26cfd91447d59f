package config

import "time"

// RateLimitConfig sizes the per-client token bucket on the visitor routes
// (download, viewer, action links).  Capacity requests may burst; after that
// one token returns every RefillInterval/RefillTokens.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration // idle buckets expire after this long
	KeyStrategy    string        // "ip", "route", "ip_user" or "ip_route"
	Prefix         string
}

func LoadRateLimitConfig() RateLimitConfig {
	rl := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       max(envInt("RATE_LIMIT_CAPACITY", 60), 1),
		RefillTokens:   max(envInt("RATE_LIMIT_REFILL_TOKENS", 1), 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "visitor-rl"),
	}
	if rl.RefillInterval <= 0 {
		rl.RefillInterval = time.Second
	}
	// A bucket must outlive the time it takes to refill completely.
	full := time.Duration(rl.Capacity/rl.RefillTokens+1) * rl.RefillInterval
	rl.TTL = max(envDur("RATE_LIMIT_TTL", 10*time.Minute), full)
	return rl
}

// AdmissionConfig bounds how many access requests a single IP may submit per
// hour and per day.  A limit of zero disables that window.
type AdmissionConfig struct {
	Enabled  bool
	PerHour  int
	PerDay   int
	Prefix   string
	FailOpen bool // admit submissions when Redis is unreachable
}

func LoadAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		Enabled:  envBool("ADMISSION_ENABLED", true),
		PerHour:  envInt("ADMISSION_PER_HOUR", 5),
		PerDay:   envInt("ADMISSION_PER_DAY", 20),
		Prefix:   envStr("ADMISSION_PREFIX", "admit"),
		FailOpen: envBool("ADMISSION_FAIL_OPEN", true),
	}
}
