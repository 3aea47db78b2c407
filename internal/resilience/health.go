package resilience

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"holograph/internal/logging"
)

// DefaultHealthTTL is how long a positive probe result stays cached.
const DefaultHealthTTL = 30 * time.Second

// ProbeFunc performs a cheap capability call against a backend, e.g.
// describing index stats. It returns nil when the backend is healthy.
type ProbeFunc func(ctx context.Context) error

type healthEntry struct {
	lastCheck   time.Time
	lastHealthy bool
}

// HealthCache keeps a bounded-TTL last-known-good per backend. Negative
// results are never cached, so the first query after recovery re-probes
// immediately.
type HealthCache struct {
	ttl time.Duration

	mu      sync.Mutex
	probes  map[string]ProbeFunc
	entries map[string]healthEntry

	now func() time.Time
}

// NewHealthCache creates a cache with the given TTL (DefaultHealthTTL when
// zero).
func NewHealthCache(ttl time.Duration) *HealthCache {
	if ttl <= 0 {
		ttl = DefaultHealthTTL
	}
	return &HealthCache{
		ttl:     ttl,
		probes:  make(map[string]ProbeFunc),
		entries: make(map[string]healthEntry),
		now:     time.Now,
	}
}

// Register installs the probe for a backend name.
func (c *HealthCache) Register(backend string, probe ProbeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[backend] = probe
}

// Healthy reports whether the backend is healthy, consulting the cache
// first. A cached positive inside the TTL short-circuits; anything else runs
// the probe.
func (c *HealthCache) Healthy(ctx context.Context, backend string) (bool, string) {
	c.mu.Lock()
	entry, seen := c.entries[backend]
	probe, registered := c.probes[backend]
	now := c.now()
	if seen && entry.lastHealthy && now.Sub(entry.lastCheck) < c.ttl {
		c.mu.Unlock()
		return true, "cached"
	}
	c.mu.Unlock()

	if !registered {
		return false, "no probe registered for " + backend
	}

	if err := probe(ctx); err != nil {
		logging.L(logging.CategoryBreaker).Warn("health probe failed",
			zap.String("backend", backend), zap.Error(err))
		// Negative results are not cached: next call re-probes.
		return false, "probe failed: " + err.Error()
	}

	c.mu.Lock()
	c.entries[backend] = healthEntry{lastCheck: c.now(), lastHealthy: true}
	c.mu.Unlock()
	return true, "probe ok"
}

// Invalidate drops the cached entry for a backend.
func (c *HealthCache) Invalidate(backend string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, backend)
}
