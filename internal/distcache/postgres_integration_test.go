//go:build integration

package distcache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_RoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	c := NewPostgres(pool, time.Hour)
	require.NoError(t, c.EnsureSchema(ctx))
	_, err = pool.Exec(ctx, `DELETE FROM distance_cache WHERE cache_key = $1`, Key(from, to))
	require.NoError(t, err)

	_, ok, err := c.Get(ctx, from, to)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, from, to, leg))
	got, ok, err := c.Get(ctx, from, to)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, leg, got)

	updated := leg
	updated.DistanceMeters = 80000
	require.NoError(t, c.Set(ctx, from, to, updated))
	got, _, err = c.Get(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, 80000, got.DistanceMeters)

	_, err = pool.Exec(ctx, `UPDATE distance_cache SET updated_at = now() - interval '2 hours' WHERE cache_key = $1`, Key(from, to))
	require.NoError(t, err)
	_, ok, err = c.Get(ctx, from, to)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}
