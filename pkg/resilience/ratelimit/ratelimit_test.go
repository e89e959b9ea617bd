package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestBucketExhaustionAndRefill(t *testing.T) {
	// capacity=5, refill 5 tokens per 100ms window
	b := NewBucket(Config{Capacity: 5, RefillPerSecond: 50})

	for i := 0; i < 5; i++ {
		if err := b.TryAcquire(1); err != nil {
			t.Fatalf("acquire %d failed: %v", i+1, err)
		}
	}

	// Sixth immediate acquire fails.
	if err := b.TryAcquire(1); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}

	// After a full window the bucket refills.
	time.Sleep(120 * time.Millisecond)
	if err := b.TryAcquire(1); err != nil {
		t.Fatalf("expected acquisition after refill, got %v", err)
	}
}

func TestBucketContinuousRefill(t *testing.T) {
	b := NewBucket(Config{Capacity: 10, RefillPerSecond: 100})
	if err := b.TryAcquire(10); err != nil {
		t.Fatalf("draining bucket failed: %v", err)
	}

	// A partial window grants partial tokens - no need to wait for a full tick.
	time.Sleep(30 * time.Millisecond)
	if err := b.TryAcquire(1); err != nil {
		t.Fatalf("expected partial refill to cover one token, got %v", err)
	}
}

func TestBucketCapsAtCapacity(t *testing.T) {
	b := NewBucket(Config{Capacity: 3, RefillPerSecond: 1000})
	time.Sleep(20 * time.Millisecond)
	if got := b.Available(); got != 3 {
		t.Errorf("expected available capped at 3, got %d", got)
	}
}

func TestBucketMultiTokenAcquire(t *testing.T) {
	b := NewBucket(Config{Capacity: 5, RefillPerSecond: 0.001})
	if err := b.TryAcquire(3); err != nil {
		t.Fatalf("acquire 3: %v", err)
	}
	if err := b.TryAcquire(3); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded acquiring 3 of 2 remaining, got %v", err)
	}
	if err := b.TryAcquire(2); err != nil {
		t.Fatalf("acquire remaining 2: %v", err)
	}
}

func TestLimiterResourceIsolation(t *testing.T) {
	l := NewLimiter(Config{Capacity: 1, RefillPerSecond: 0.001})

	if err := l.TryAcquire("anthropic", 1); err != nil {
		t.Fatalf("first anthropic acquire: %v", err)
	}
	if err := l.TryAcquire("anthropic", 1); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected anthropic exhausted, got %v", err)
	}

	// A different resource key has its own bucket.
	if err := l.TryAcquire("openai", 1); err != nil {
		t.Fatalf("openai acquire should be independent: %v", err)
	}
}

func TestLimiterConfigure(t *testing.T) {
	l := NewLimiter(DefaultConfig)
	l.Configure("ollama", Config{Capacity: 2, RefillPerSecond: 0.001})

	if got := l.Available("ollama"); got != 2 {
		t.Errorf("expected configured capacity 2, got %d", got)
	}
}
