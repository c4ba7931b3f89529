package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// PersonCacheTTL bounds how stale a cached directory lookup may get.
	PersonCacheTTL = 15 * time.Minute
	deliveryTTL    = 24 * time.Hour
)

// ErrCacheMiss is returned by GetCached when the key is absent.
var ErrCacheMiss = errors.New("store: cache miss")

// RedisStore handles Redis operations for caching and webhook bookkeeping.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client returns the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// cacheKey returns the key for a cached directory lookup.
func cacheKey(key string) string {
	return fmt.Sprintf("directory:%s", key)
}

// GetCached returns the raw bytes stored under key.
func (s *RedisStore) GetCached(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, cacheKey(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	return b, err
}

// SetCached stores value under key with a TTL.
func (s *RedisStore) SetCached(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, cacheKey(key), value, ttl).Err()
}

// deliveryKey returns the key for webhook delivery tracking.
func deliveryKey(id string) string {
	return fmt.Sprintf("delivery:%s", id)
}

// MarkDelivered records a webhook delivery id. It reports false when the
// id was already recorded, which means the delivery is a duplicate.
func (s *RedisStore) MarkDelivered(ctx context.Context, id string) (bool, error) {
	return s.client.SetNX(ctx, deliveryKey(id), "1", deliveryTTL).Result()
}

// ForgetDelivery removes a delivery id so a redelivery is processed.
func (s *RedisStore) ForgetDelivery(ctx context.Context, id string) error {
	return s.client.Del(ctx, deliveryKey(id)).Err()
}
