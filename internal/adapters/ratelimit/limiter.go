// Package ratelimit provides per-(user, risk tier) token-bucket rate
// limiting for the Validation Wall's policy tier.
package ratelimit

import (
	"sync"
	"time"

	"github.com/longregen/cogexec/internal/domain/models"
)

// Config configures a single risk tier's token bucket.
type Config struct {
	Limit  int           // requests allowed per Window
	Window time.Duration // refill window
}

// DefaultConfigs returns spec-mandated defaults: 50/min safe, 20/min
// review, 5/5min confirm, 2/hour owner-root.
func DefaultConfigs() map[models.RiskTier]Config {
	return map[models.RiskTier]Config{
		models.RiskSafe:      {Limit: 50, Window: time.Minute},
		models.RiskReview:    {Limit: 20, Window: time.Minute},
		models.RiskConfirm:   {Limit: 5, Window: 5 * time.Minute},
		models.RiskOwnerRoot: {Limit: 2, Window: time.Hour},
	}
}

// bucket implements token-bucket rate limiting with continuous refill.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newBucket(cfg Config) *bucket {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 1
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &bucket{
		tokens:     float64(limit),
		maxTokens:  float64(limit),
		refillRate: float64(limit) / window.Seconds(),
		lastRefill: time.Now(),
	}
}

func (b *bucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (b *bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

// Limiter enforces the Policy tier's rate limits, one bucket per
// (user_id, risk_tier) pair, matching spec.md §4.4's per-tier defaults.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	configs map[models.RiskTier]Config
}

func NewLimiter(configs map[models.RiskTier]Config) *Limiter {
	if configs == nil {
		configs = DefaultConfigs()
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		configs: configs,
	}
}

// Allow reports whether a request for (userID, tier) should proceed,
// consuming a token if so.
func (l *Limiter) Allow(userID string, tier models.RiskTier) bool {
	key := userID + ":" + string(tier)

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		cfg, known := l.configs[tier]
		if !known {
			cfg = Config{Limit: 50, Window: time.Minute}
		}
		b = newBucket(cfg)
		l.buckets[key] = b
	}
	l.mu.Unlock()

	return b.allow()
}

// Reset clears the bucket for (userID, tier), used by tests and admin
// tooling to restore a fresh window.
func (l *Limiter) Reset(userID string, tier models.RiskTier) {
	key := userID + ":" + string(tier)
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}
