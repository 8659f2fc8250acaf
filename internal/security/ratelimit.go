package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig holds configurable per-user rate limits.
type RateLimitConfig struct {
	MessagesPerMin int `yaml:"messages_per_min"`
	TokensPerHour  int `yaml:"tokens_per_hour"`
}

// rateLimitConfigDefaults returns a config with sensible defaults.
func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		MessagesPerMin: 20,
		TokensPerHour:  0, // 0 = unlimited
	}
}

// RateLimiter implements per-key sliding window rate limiting.
// Each key (usually a user id) gets its own message bucket and, when
// configured, a token bucket.
type RateLimiter struct {
	mu     sync.Mutex
	keys   map[string]*keyBuckets
	config RateLimitConfig
	now    func() time.Time
}

type keyBuckets struct {
	messages bucket
	tokens   bucket
	lastSeen time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
// A zero MessagesPerMin is replaced with the default; a negative one
// disables message limiting.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.MessagesPerMin == 0 {
		cfg.MessagesPerMin = rateLimitConfigDefaults().MessagesPerMin
	}
	return &RateLimiter{
		keys:   make(map[string]*keyBuckets),
		config: cfg,
		now:    time.Now,
	}
}

// Allow records one message for key. Returns ErrRateLimited if key
// already sent MessagesPerMin messages in the last minute.
func (rl *RateLimiter) Allow(key string) error {
	if rl.config.MessagesPerMin < 0 {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	kb := rl.lookup(key)
	return kb.messages.take(rl.now(), 1)
}

// Exhausted reports whether key has no message left in the current
// window, without recording anything.
func (rl *RateLimiter) Exhausted(key string) bool {
	if rl.config.MessagesPerMin < 0 {
		return false
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	kb, ok := rl.keys[key]
	if !ok {
		return false
	}
	kb.messages.evict(rl.now())
	return len(kb.messages.events) >= kb.messages.limit
}

// AllowTokens records n tokens for key against the hourly token budget.
// It always succeeds when TokensPerHour is not set.
func (rl *RateLimiter) AllowTokens(key string, n int) error {
	if rl.config.TokensPerHour <= 0 || n <= 0 {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	kb := rl.lookup(key)
	return kb.tokens.take(rl.now(), n)
}

// Prune forgets keys that have not been seen for maxIdle and returns how
// many were removed.
func (rl *RateLimiter) Prune(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	n := 0
	for key, kb := range rl.keys {
		if kb.lastSeen.Before(cutoff) {
			delete(rl.keys, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.keys)
}

// lookup returns the buckets of key, creating them on first use.
// rl.mu must be held.
func (rl *RateLimiter) lookup(key string) *keyBuckets {
	kb, ok := rl.keys[key]
	if !ok {
		kb = &keyBuckets{
			messages: bucket{window: time.Minute, limit: rl.config.MessagesPerMin},
			tokens:   bucket{window: time.Hour, limit: rl.config.TokensPerHour},
		}
		rl.keys[key] = kb
	}
	kb.lastSeen = rl.now()
	return kb
}

// take admits n events at now, or none of them.
func (b *bucket) take(now time.Time, n int) error {
	b.evict(now)
	if len(b.events)+n > b.limit {
		return ErrRateLimited
	}
	for range n {
		b.events = append(b.events, now)
	}
	return nil
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	// Events are chronologically ordered.
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
