package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewWithClient(client, time.Hour)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestSetGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Enhanced string `json:"enhanced"`
		Language string `json:"language"`
	}

	ok := c.Set(ctx, "query_expansion:ceo", payload{Enhanced: "CEO chief executive", Language: "eng"}, 0)
	require.True(t, ok)

	var got payload
	require.True(t, c.Get(ctx, "query_expansion:ceo", &got))
	assert.Equal(t, "CEO chief executive", got.Enhanced)
	assert.Equal(t, "eng", got.Language)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c, _ := newTestCache(t)

	var got string
	assert.False(t, c.Get(context.Background(), "query_expansion:absent", &got))
}

func TestGetAfterExpiryIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.True(t, c.Set(ctx, "query_expansion:cto", "expanded", 30*time.Second))

	var got string
	require.True(t, c.Get(ctx, "query_expansion:cto", &got))

	mr.FastForward(31 * time.Second)

	assert.False(t, c.Get(ctx, "query_expansion:cto", &got))
	assert.False(t, c.Exists(ctx, "query_expansion:cto"))
}

func TestDefaultTTLApplied(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.True(t, c.Set(ctx, "k", "v", 0))

	ttl, ok := c.TTL(ctx, "k")
	require.True(t, ok)
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 2)
}

func TestTTLMissingKey(t *testing.T) {
	c, _ := newTestCache(t)

	_, ok := c.TTL(context.Background(), "nope")
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.True(t, c.Set(ctx, "k", "v", 0))
	require.True(t, c.Delete(ctx, "k"))
	assert.False(t, c.Exists(ctx, "k"))

	// Deleting an absent key is not an error.
	assert.True(t, c.Delete(ctx, "k"))
}

func TestClearPattern(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.True(t, c.Set(ctx, "query_expansion:a", 1, 0))
	require.True(t, c.Set(ctx, "query_expansion:b", 2, 0))
	require.True(t, c.Set(ctx, "other:c", 3, 0))

	n := c.ClearPattern(ctx, "query_expansion:*")
	assert.Equal(t, 2, n)
	assert.False(t, c.Exists(ctx, "query_expansion:a"))
	assert.True(t, c.Exists(ctx, "other:c"))
}

func TestOperationsDegradeWhenServerDown(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.True(t, c.Set(ctx, "k", "v", 0))
	mr.Close()

	var got string
	assert.False(t, c.Get(ctx, "k", &got))
	assert.False(t, c.Set(ctx, "k2", "v", 0))
	assert.False(t, c.Exists(ctx, "k"))
	assert.False(t, c.Delete(ctx, "k"))
	_, ok := c.TTL(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.ClearPattern(ctx, "*"))
}
