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

func TestMemory_RoundTrip(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "page", []byte("<html>planted</html>"), time.Minute)
	got, ok := c.Get(ctx, "page")
	require.True(t, ok)
	assert.Equal(t, []byte("<html>planted</html>"), got)
}

func TestRedis_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisWithClient(client, "page:")
	ctx := context.Background()

	c.Set(ctx, "u1", []byte("body"), time.Hour)
	got, ok := c.Get(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, []byte("body"), got)

	mr.FastForward(2 * time.Hour)
	_, ok = c.Get(ctx, "u1")
	assert.False(t, ok, "entry must expire with its TTL")
}

func TestBounded_TTLExpiry(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	b := NewBounded(10, time.Minute).WithClock(func() time.Time { return now })

	b.Set("k", 42)
	v, ok := b.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	now = now.Add(2 * time.Minute)
	_, ok = b.Get("k")
	assert.False(t, ok)
}

func TestBounded_LRUEviction(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	b := NewBounded(2, time.Hour).WithClock(func() time.Time { return now })

	b.Set("a", 1)
	now = now.Add(time.Second)
	b.Set("b", 2)
	now = now.Add(time.Second)
	b.Get("a") // refresh a; b becomes LRU
	now = now.Add(time.Second)
	b.Set("c", 3)

	_, okA := b.Get("a")
	_, okB := b.Get("b")
	_, okC := b.Get("c")
	assert.True(t, okA)
	assert.False(t, okB, "least recently used entry must be evicted")
	assert.True(t, okC)
	assert.Equal(t, 2, b.Len())
}
