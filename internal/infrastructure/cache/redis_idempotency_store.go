package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
)

const defaultKeyPrefix = "print:idempotency:"

// RedisIdempotencyStore implements IdempotencyStore using Redis so that
// several instances share submission keys
type RedisIdempotencyStore struct {
	client     *redis.Client
	ownsClient bool
	keyPrefix  string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisIdempotencyStore connects to Redis and verifies the connection
func NewRedisIdempotencyStore(ctx context.Context, cfg RedisConfig, keyPrefix string) (*RedisIdempotencyStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := NewRedisIdempotencyStoreWithClient(client, keyPrefix)
	store.ownsClient = true
	return store, nil
}

// NewRedisIdempotencyStoreWithClient creates a store with an existing Redis client.
// The caller keeps ownership of the client.
func NewRedisIdempotencyStoreWithClient(client *redis.Client, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// MarkProcessed uses SETNX with a TTL, so concurrent submissions of the same
// key race on a single atomic command
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark idempotency key: %w", err)
	}
	return ok, nil
}

// Release deletes key
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Close closes the Redis client if the store created it
func (s *RedisIdempotencyStore) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

// Ping checks that Redis is reachable
func (s *RedisIdempotencyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ printing.IdempotencyStore = (*RedisIdempotencyStore)(nil)
