package cache

import (
	"context"
	"fmt"

	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
	"github.com/sgpatel/secure-pdf-viewer/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Store kinds accepted by idempotency.store
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// IdempotencyStoreFactory creates idempotency stores based on configuration
type IdempotencyStoreFactory struct {
	idempotency           config.IdempotencyConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// IdempotencyStoreFactoryOption is a functional option for configuring the factory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to memory.
// Default is true.
func WithInMemoryFallback(allow bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewIdempotencyStoreFactory creates a new factory
func NewIdempotencyStoreFactory(idem config.IdempotencyConfig, redisCfg config.RedisConfig, opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{
		idempotency:           idem,
		redisConfig:           redisCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateStore returns the configured store. A redis store that cannot connect
// falls back to memory when fallback is allowed.
func (f *IdempotencyStoreFactory) CreateStore(ctx context.Context) (printing.IdempotencyStore, error) {
	switch f.idempotency.Store {
	case "", StoreMemory:
		f.logger.Info("using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(), nil
	case StoreRedis:
	default:
		return nil, fmt.Errorf("unknown idempotency store %q", f.idempotency.Store)
	}

	store, err := NewRedisIdempotencyStore(ctx, RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}, f.idempotency.KeyPrefix)
	if err == nil {
		f.logger.Info("using Redis idempotency store", zap.String("addr", f.redisConfig.Addr()))
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for idempotency but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store. "+
		"Duplicate submissions are only detected per instance.",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(), nil
}
