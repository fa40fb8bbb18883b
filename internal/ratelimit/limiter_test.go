package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BurstThenDeny(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerMinute: 60, Burst: 3})
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("u1"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("u1"), "burst exhausted")
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerMinute: 60, Burst: 1})
	assert.True(t, l.Allow("u1"))
	assert.False(t, l.Allow("u1"))
	assert.True(t, l.Allow("u2"), "a second identity has its own bucket")
}

func TestLimiter_Sweep(t *testing.T) {
	t.Parallel()

	l := New(Config{IdleTTL: time.Minute})
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	l.Allow("old")
	l.now = func() time.Time { return base.Add(2 * time.Minute) }
	l.Allow("fresh")

	removed := l.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, l.Len())
}
