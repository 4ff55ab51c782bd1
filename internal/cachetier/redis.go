package cachetier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTier is the remote half of the two-tier cache, storing namespaced
// byte payloads with per-entry TTLs. Construction mirrors the teacher's
// storage.RedisStore.NewRedisStore (ParseURL, NewClient, Ping).
type RedisTier struct {
	client *redis.Client
}

// NewRedisTier parses redisURL and verifies connectivity with a Ping.
func NewRedisTier(ctx context.Context, redisURL string) (*RedisTier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisTier{client: client}, nil
}

// Close releases the underlying connection pool.
func (t *RedisTier) Close() error {
	return t.client.Close()
}

// Get returns the bytes stored under key, or ok=false on a cache miss.
func (t *RedisTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := t.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores data under key with the given TTL.
func (t *RedisTier) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return t.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes key.
func (t *RedisTier) Delete(ctx context.Context, key string) error {
	return t.client.Del(ctx, key).Err()
}
