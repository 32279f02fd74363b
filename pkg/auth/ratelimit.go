package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether an identity may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, id *Identity) error
}

// TierConfig holds the rate limit of one tier. Burst defaults to
// RequestsPerMinute.
type TierConfig struct {
	RequestsPerMinute int
	Burst             int
}

// idleAfter is how long an unused bucket is kept.
const idleAfter = 10 * time.Minute

// Limiter is an in-process token bucket limiter keyed by subject and tier.
// Buckets of subjects that stay idle are dropped.
type Limiter struct {
	tiers       map[string]TierConfig
	defaultTier TierConfig
	now         func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastPrune time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a Limiter. defaultRPM applies to tiers without their
// own entry; zero or negative means unlimited.
func NewLimiter(defaultRPM int, tiers map[string]TierConfig) *Limiter {
	return &Limiter{
		tiers:       tiers,
		defaultTier: TierConfig{RequestsPerMinute: defaultRPM},
		now:         time.Now,
		buckets:     make(map[string]*bucket),
	}
}

var _ RateLimiter = (*Limiter)(nil)

// Allow takes one token from the identity's bucket.
func (l *Limiter) Allow(_ context.Context, id *Identity) error {
	tier := id.EffectiveTier()
	cfg, ok := l.tiers[tier]
	if !ok {
		cfg = l.defaultTier
	}
	if cfg.RequestsPerMinute <= 0 {
		return nil
	}

	now := l.now()
	key := id.Subject + ":" + tier

	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(now)
	b, ok := l.buckets[key]
	if !ok {
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.RequestsPerMinute
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	if !b.limiter.AllowN(now, 1) {
		return ErrTooManyRequests
	}
	return nil
}

// prune drops idle buckets, at most once per idleAfter. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < idleAfter {
		return
	}
	l.lastPrune = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= idleAfter {
			delete(l.buckets, key)
		}
	}
}

// Len returns the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
