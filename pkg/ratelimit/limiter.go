// Package ratelimit implements a Redis fixed-window rate limiter keyed by
// policy tier. Each route policy names a tier; tiers map to a request count
// per window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tier describes one rate-limit class shared by a set of routes.
type Tier struct {
	Limit  int           // requests allowed per window
	Window time.Duration // window length
}

// DefaultTiers covers the tiers route policies reference.
var DefaultTiers = map[string]Tier{
	"public":  {Limit: 120, Window: time.Minute},
	"authed":  {Limit: 600, Window: time.Minute},
	"uploads": {Limit: 30, Window: time.Minute},
	"admin":   {Limit: 300, Window: time.Minute},
}

// Limiter counts requests per (tier, caller) in Redis.
type Limiter struct {
	client *redis.Client
	tiers  map[string]Tier
}

// New creates a limiter. Nil tiers fall back to DefaultTiers.
func New(client *redis.Client, tiers map[string]Tier) *Limiter {
	if tiers == nil {
		tiers = DefaultTiers
	}
	return &Limiter{client: client, tiers: tiers}
}

// Allow consumes one request from the caller's window and reports whether
// the request may proceed. Unknown tiers always allow; a route naming a
// missing tier should not take down traffic.
func (l *Limiter) Allow(ctx context.Context, tier, key string) (bool, error) {
	t, ok := l.tiers[tier]
	if !ok || t.Limit <= 0 {
		return true, nil
	}

	window := time.Now().UnixMilli() / t.Window.Milliseconds()
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", tier, key, window)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, t.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return count.Val() <= int64(t.Limit), nil
}
