// Package bulkhead bounds concurrent in-flight operations per resource key so
// one saturated dependency cannot drain the whole process.
package bulkhead

import (
	"errors"
	"sync"
)

// ErrBulkheadFull is returned when a resource is at its concurrency limit.
var ErrBulkheadFull = errors.New("bulkhead concurrency limit reached")

// Config defines the concurrency bound for one resource.
type Config struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

// DefaultConfig provides a reasonable default bound.
//
//nolint:gochecknoglobals // sensible default config pattern
var DefaultConfig = Config{
	MaxConcurrent: 4,
}

// Bulkhead limits concurrent in-flight operations per named resource. Calls
// beyond the limit fail fast rather than queueing.
type Bulkhead struct {
	mu       sync.Mutex
	inFlight map[string]int
	limits   map[string]int
	defaults Config
}

// New creates a bulkhead; unseen resources use the default limit.
func New(defaults Config) *Bulkhead {
	return &Bulkhead{
		inFlight: make(map[string]int),
		limits:   make(map[string]int),
		defaults: defaults,
	}
}

// Configure sets an explicit concurrency limit for a resource.
func (b *Bulkhead) Configure(resource string, cfg Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[resource] = cfg.MaxConcurrent
}

// Acquire reserves an in-flight slot for the resource. The returned release
// function must be called exactly once; the second return is ErrBulkheadFull
// when the resource is saturated.
func (b *Bulkhead) Acquire(resource string) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	limit, ok := b.limits[resource]
	if !ok {
		limit = b.defaults.MaxConcurrent
	}

	if b.inFlight[resource] >= limit {
		return nil, ErrBulkheadFull
	}
	b.inFlight[resource]++

	var once sync.Once
	release := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.inFlight[resource]--
		})
	}
	return release, nil
}

// InFlight returns the current in-flight count for a resource.
func (b *Bulkhead) InFlight(resource string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight[resource]
}
