package distcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evroute/evroute/internal/routing"
)

var (
	from = routing.Coordinate{Lat: 52.370216, Lon: 4.895168}
	to   = routing.Coordinate{Lat: 51.924420, Lon: 4.477733}
	leg  = routing.Leg{DistanceMeters: 78000, DistanceText: "78.0 km", DurationSeconds: 3600, DurationText: "1 hour"}
)

func TestKey(t *testing.T) {
	assert.Equal(t, "52.37022,4.89517->51.92442,4.47773", Key(from, to))
	assert.NotEqual(t, Key(from, to), Key(to, from))

	near := routing.Coordinate{Lat: 52.3702161, Lon: 4.8951679}
	assert.Equal(t, Key(from, to), Key(near, to))
	assert.Equal(t, routing.PairKey(from, to), Key(from, to))
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(time.Hour)
	m.now = func() time.Time { return now }

	_, ok, err := m.Get(ctx, from, to)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, from, to, leg))
	got, ok, err := m.Get(ctx, from, to)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, leg, got)

	_, ok, _ = m.Get(ctx, to, from)
	assert.False(t, ok)

	now = now.Add(2 * time.Hour)
	_, ok, _ = m.Get(ctx, from, to)
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestMemory_DefaultTTL(t *testing.T) {
	m := NewMemory(0)
	assert.Equal(t, DefaultTTL, m.ttl)
	assert.Equal(t, sweepInterval, m.sweepInterval)
	assert.Equal(t, time.Minute, NewMemory(time.Minute).sweepInterval)
}

func TestMemory_WritesSweepExpiredEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(time.Hour)
	m.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		p := routing.Coordinate{Lat: 50 + float64(i)*0.01, Lon: 4}
		require.NoError(t, m.Set(ctx, p, to, leg))
	}
	assert.Equal(t, 50, m.Len())

	// Never read again, so only a sweep can drop them.
	now = now.Add(time.Hour + time.Minute)
	require.NoError(t, m.Set(ctx, from, to, leg))
	assert.Equal(t, 1, m.Len())

	_, ok, err := m.Get(ctx, from, to)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_SweepIsRateLimited(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, from, to, leg))
	now = now.Add(2 * time.Minute)
	require.NoError(t, m.Set(ctx, to, from, leg)) // sweeps from->to
	assert.Equal(t, 1, m.Len())

	// Within the sweep interval, writes do not scan.
	now = now.Add(30 * time.Second)
	require.NoError(t, m.Set(ctx, from, to, leg))
	now = now.Add(29 * time.Second)
	require.NoError(t, m.Set(ctx, from, from, leg))
	assert.Equal(t, 3, m.Len())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 3, m.Sweep())
	assert.Zero(t, m.Len())
}

func newRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, time.Minute), mr
}

func TestRedis_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedis(t)

	_, ok, err := c.Get(ctx, from, to)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, from, to, leg))
	assert.True(t, mr.Exists(redisKeyPrefix+Key(from, to)))
	assert.Equal(t, time.Minute, mr.TTL(redisKeyPrefix+Key(from, to)))

	got, ok, err := c.Get(ctx, from, to)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, leg, got)
}

func TestRedis_Expiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedis(t)

	require.NoError(t, c.Set(ctx, from, to, leg))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, from, to)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_CorruptValue(t *testing.T) {
	c, mr := newRedis(t)
	require.NoError(t, mr.Set(redisKeyPrefix+Key(from, to), "not json"))

	_, ok, err := c.Get(context.Background(), from, to)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedis_ServerDown(t *testing.T) {
	c, mr := newRedis(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), from, to)
	assert.Error(t, err)
	assert.Error(t, c.Set(context.Background(), from, to, leg))
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := RedisConfig{Host: mr.Host(), Port: mr.Port()}

	client, err := OpenRedis(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = OpenRedis(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_PORT", "")
	t.Setenv("REDIS_DB", "nope")
	cfg := RedisConfigFromEnv()
	assert.Equal(t, "127.0.0.1:6379", cfg.Addr())
	assert.Zero(t, cfg.DB)

	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "3")
	cfg = RedisConfigFromEnv()
	assert.Equal(t, "cache:6380", cfg.Addr())
	assert.Equal(t, 3, cfg.DB)
}
