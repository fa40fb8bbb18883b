// Package ratelimit provides a per-identity request limiter for the HTTP
// surface.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config tunes the limiter.
type Config struct {
	// RequestsPerMinute is the sustained per-identity rate.
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	// Burst is the short-term allowance above the sustained rate.
	Burst int `yaml:"burst" mapstructure:"burst"`
	// IdleTTL evicts limiters not seen for this long.
	IdleTTL time.Duration `yaml:"idle_ttl" mapstructure:"idle_ttl"`
}

func (c Config) withDefaults() Config {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 60
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 10 * time.Minute
	}
	return c
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks a token bucket per identity (user id or client address).
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	cfg     Config
	now     func() time.Time
}

func New(cfg Config) *Limiter {
	return &Limiter{
		entries: make(map[string]*entry),
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
}

// Allow reports whether the identity may make a request now.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{
			limiter: rate.NewLimiter(rate.Limit(float64(l.cfg.RequestsPerMinute)/60.0), l.cfg.Burst),
		}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

// Sweep drops idle entries. Callers run it periodically; it is safe to
// call concurrently with Allow.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.IdleTTL)
	removed := 0
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identities.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
