// Package ratelimit provides token bucket rate limiting keyed by resource name.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimitExceeded is returned when a bucket has insufficient tokens.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Config defines the token bucket parameters for one resource.
type Config struct {
	Capacity        float64 `yaml:"capacity"`          // Maximum tokens the bucket holds
	RefillPerSecond float64 `yaml:"refill_per_second"` // Tokens accrued per second
}

// DefaultConfig provides a conservative default bucket.
//
//nolint:gochecknoglobals // sensible default config pattern
var DefaultConfig = Config{
	Capacity:        60,
	RefillPerSecond: 1,
}

// Bucket is a single token bucket. Tokens refill continuously based on elapsed
// time rather than in discrete ticks, so a partial window grants partial tokens.
type Bucket struct {
	mu              sync.Mutex
	capacity        float64
	tokens          float64
	refillPerSecond float64
	lastRefill      time.Time
}

// NewBucket creates a full bucket with the given configuration.
func NewBucket(cfg Config) *Bucket {
	return &Bucket{
		capacity:        cfg.Capacity,
		tokens:          cfg.Capacity, // start full
		refillPerSecond: cfg.RefillPerSecond,
		lastRefill:      time.Now(),
	}
}

// TryAcquire consumes tokens from the bucket, returning ErrRateLimitExceeded
// without blocking when insufficient tokens are available.
func (b *Bucket) TryAcquire(tokens int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	need := float64(tokens)
	if b.tokens < need {
		return ErrRateLimitExceeded
	}
	b.tokens -= need
	return nil
}

// Available returns the whole tokens currently available.
func (b *Bucket) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return int(b.tokens)
}

// refill accrues tokens for the elapsed interval. Caller holds the lock.
func (b *Bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillPerSecond
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// Limiter manages one token bucket per named resource (e.g. per LLM provider).
// Safe for concurrent use by multiple orchestrator instances.
type Limiter struct {
	mu       sync.RWMutex
	buckets  map[string]*Bucket
	defaults Config
}

// NewLimiter creates a limiter; buckets for unseen resources are created on
// first use from the default configuration.
func NewLimiter(defaults Config) *Limiter {
	return &Limiter{
		buckets:  make(map[string]*Bucket),
		defaults: defaults,
	}
}

// Configure sets an explicit bucket configuration for a resource, replacing
// any existing bucket for that key.
func (l *Limiter) Configure(resource string, cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[resource] = NewBucket(cfg)
}

// TryAcquire consumes tokens from the named resource's bucket.
func (l *Limiter) TryAcquire(resource string, tokens int) error {
	return l.bucket(resource).TryAcquire(tokens)
}

// Available returns the whole tokens currently available for a resource.
func (l *Limiter) Available(resource string) int {
	return l.bucket(resource).Available()
}

func (l *Limiter) bucket(resource string) *Bucket {
	l.mu.RLock()
	b, ok := l.buckets[resource]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[resource]; ok {
		return b
	}
	b = NewBucket(l.defaults)
	l.buckets[resource] = b
	return b
}
