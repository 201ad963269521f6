package distcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evroute/evroute/internal/routing"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS distance_cache (
	cache_key        TEXT PRIMARY KEY,
	distance_meters  INTEGER NOT NULL,
	distance_text    TEXT NOT NULL,
	duration_seconds INTEGER NOT NULL,
	duration_text    TEXT NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres keeps legs in a distance_cache table. Rows older than the TTL are
// ignored on read and overwritten on the next write.
type Postgres struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgres wraps a pool. A non-positive ttl uses DefaultTTL.
func NewPostgres(pool *pgxpool.Pool, ttl time.Duration) *Postgres {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Postgres{pool: pool, ttl: ttl}
}

// EnsureSchema creates the table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create distance_cache table: %w", err)
	}
	return nil
}

// Get implements routing.DistanceCache.
func (p *Postgres) Get(ctx context.Context, from, to routing.Coordinate) (routing.Leg, bool, error) {
	const q = `
	SELECT distance_meters, distance_text, duration_seconds, duration_text
	FROM distance_cache
	WHERE cache_key = $1 AND updated_at > $2`

	var leg routing.Leg
	err := p.pool.QueryRow(ctx, q, Key(from, to), time.Now().Add(-p.ttl)).Scan(
		&leg.DistanceMeters, &leg.DistanceText, &leg.DurationSeconds, &leg.DurationText,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return routing.Leg{}, false, nil
	}
	if err != nil {
		return routing.Leg{}, false, fmt.Errorf("get cached distance: %w", err)
	}
	return leg, true, nil
}

// Set implements routing.DistanceCache.
func (p *Postgres) Set(ctx context.Context, from, to routing.Coordinate, leg routing.Leg) error {
	const q = `
	INSERT INTO distance_cache (cache_key, distance_meters, distance_text, duration_seconds, duration_text, updated_at)
	VALUES ($1, $2, $3, $4, $5, now())
	ON CONFLICT (cache_key) DO UPDATE
	SET distance_meters = EXCLUDED.distance_meters,
		distance_text = EXCLUDED.distance_text,
		duration_seconds = EXCLUDED.duration_seconds,
		duration_text = EXCLUDED.duration_text,
		updated_at = EXCLUDED.updated_at`

	_, err := p.pool.Exec(ctx, q, Key(from, to), leg.DistanceMeters, leg.DistanceText, leg.DurationSeconds, leg.DurationText)
	if err != nil {
		return fmt.Errorf("store cached distance: %w", err)
	}
	return nil
}

// Purge deletes expired rows and returns how many were removed.
func (p *Postgres) Purge(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM distance_cache WHERE updated_at <= $1`, time.Now().Add(-p.ttl))
	if err != nil {
		return 0, fmt.Errorf("purge distance cache: %w", err)
	}
	return tag.RowsAffected(), nil
}
