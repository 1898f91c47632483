package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/receiving/internal/domain/shared"
	"github.com/erp/receiving/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stores bundles the cache-backed stores the service needs
type Stores struct {
	Summary     SummaryStore
	Idempotency shared.IdempotencyStore
	Driver      string // driver actually in use, "memory" after a fallback

	closers []func() error
	ping    func(ctx context.Context) error
}

// Ping checks the Redis connection. In-memory stores are always reachable.
func (s *Stores) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases every store and the Redis client, if any
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Factory builds Stores from configuration
type Factory struct {
	cache       config.CacheConfig
	redis       config.RedisConfig
	logger      *zap.Logger
	pingTimeout time.Duration
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithLogger sets the factory logger
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithPingTimeout bounds the startup Redis health check
func WithPingTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) {
		f.pingTimeout = d
	}
}

// NewFactory creates a new Factory
func NewFactory(cacheCfg config.CacheConfig, redisCfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		cache:       cacheCfg,
		redis:       redisCfg,
		logger:      zap.NewNop(),
		pingTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Build returns Redis-backed stores when the driver is redis and Redis
// answers a ping; otherwise in-memory stores, if fallback is allowed.
func (f *Factory) Build(ctx context.Context) (*Stores, error) {
	if f.cache.Driver != "redis" {
		return f.memoryStores(), nil
	}

	client, err := f.connect(ctx)
	if err == nil {
		f.logger.Info("using Redis cache", zap.String("addr", f.redis.Addr()))
		return &Stores{
			Summary:     NewRedisSummaryCache(client, f.redis.KeyPrefix),
			Idempotency: NewRedisIdempotencyStore(client, f.redis.KeyPrefix),
			Driver:      "redis",
			closers:     []func() error{client.Close},
			ping: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		}, nil
	}

	if !f.cache.FallbackToMemory {
		return nil, fmt.Errorf("redis required for cache but unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory cache; replicas will not share it",
		zap.String("addr", f.redis.Addr()),
		zap.Error(err),
	)
	return f.memoryStores(), nil
}

func (f *Factory) memoryStores() *Stores {
	summary := NewMemorySummaryCache()
	idempotency := NewInMemoryIdempotencyStore()
	return &Stores{
		Summary:     summary,
		Idempotency: idempotency,
		Driver:      "memory",
		closers:     []func() error{summary.Close, idempotency.Close},
	}
}

func (f *Factory) connect(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     f.redis.Addr(),
		Password: f.redis.Password,
		DB:       f.redis.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, f.pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", f.redis.Addr(), err)
	}
	return client, nil
}
