package distcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evroute/evroute/internal/routing"
)

const redisKeyPrefix = "evroute:distance:"

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// RedisConfigFromEnv reads REDIS_HOST, REDIS_PORT, REDIS_PASS and REDIS_DB.
// An unparsable REDIS_DB falls back to 0.
func RedisConfigFromEnv() RedisConfig {
	cfg := RedisConfig{
		Host:     os.Getenv("REDIS_HOST"),
		Port:     os.Getenv("REDIS_PORT"),
		Password: os.Getenv("REDIS_PASS"),
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "6379"
	}
	if n, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil && n >= 0 {
		cfg.DB = n
	}
	return cfg
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// OpenRedis creates a client and checks it with PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr(), Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// Redis stores legs as JSON strings with a per-key expiry, so several API
// instances can share lookups.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an open client. A non-positive ttl uses DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Get implements routing.DistanceCache.
func (r *Redis) Get(ctx context.Context, from, to routing.Coordinate) (routing.Leg, bool, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+Key(from, to)).Bytes()
	if errors.Is(err, redis.Nil) {
		return routing.Leg{}, false, nil
	}
	if err != nil {
		return routing.Leg{}, false, fmt.Errorf("redis get distance: %w", err)
	}
	var leg routing.Leg
	if err := json.Unmarshal(raw, &leg); err != nil {
		return routing.Leg{}, false, fmt.Errorf("decode cached distance: %w", err)
	}
	return leg, true, nil
}

// Set implements routing.DistanceCache.
func (r *Redis) Set(ctx context.Context, from, to routing.Coordinate, leg routing.Leg) error {
	raw, err := json.Marshal(leg)
	if err != nil {
		return fmt.Errorf("encode distance: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+Key(from, to), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set distance: %w", err)
	}
	return nil
}
