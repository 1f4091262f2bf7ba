package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is an emergency cache shared by several folio instances.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// OpenRedisCache connects to addr and verifies the connection. Keys are
// stored under prefix and expire after ttl (0 keeps them forever).
func OpenRedisCache(ctx context.Context, addr, prefix string, ttl time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("store: redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}, nil
}

// Close closes the client.
func (r *RedisCache) Close() error {
	return r.rdb.Close()
}

func (r *RedisCache) key(k string) string { return r.prefix + k }

// Get returns the value under key.
func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: redis get: %w", err)
	}
	return v, true, nil
}

// Set stores value under key.
func (r *RedisCache) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("store: redis set: %w", err)
	}
	return nil
}

// Remove deletes key.
func (r *RedisCache) Remove(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("store: redis remove: %w", err)
	}
	return nil
}
