// Package server implements the optional per-connection echo throttle.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

type rateLimiter struct {
	limiter *rate.Limiter
}

// newRateLimiter returns nil when throttling is disabled; a nil limiter
// allows every message.
func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.Burst <= 0 {
		return nil
	}

	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	every := rate.Every(interval / time.Duration(cfg.Burst))
	return &rateLimiter{limiter: rate.NewLimiter(every, cfg.Burst)}
}

func (rl *rateLimiter) allow() bool {
	if rl == nil {
		return true
	}
	return rl.limiter.Allow()
}
