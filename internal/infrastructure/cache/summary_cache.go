package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SummaryStore caches pending order lists per tenant
type SummaryStore interface {
	Get(ctx context.Context, tenantID uuid.UUID) ([]receiving.OrderSummary, bool, error)
	Set(ctx context.Context, tenantID uuid.UUID, orders []receiving.OrderSummary, ttl time.Duration) error
	Invalidate(ctx context.Context, tenantID uuid.UUID) error
}

// MemorySummaryCache is a SummaryStore in process memory
type MemorySummaryCache struct {
	entries *ttlMap[uuid.UUID, []receiving.OrderSummary]
}

// NewMemorySummaryCache creates an empty in-memory summary cache
func NewMemorySummaryCache() *MemorySummaryCache {
	return &MemorySummaryCache{entries: newTTLMap[uuid.UUID, []receiving.OrderSummary](time.Minute)}
}

// Get returns a copy of the cached list
func (c *MemorySummaryCache) Get(_ context.Context, tenantID uuid.UUID) ([]receiving.OrderSummary, bool, error) {
	orders, ok := c.entries.get(tenantID)
	if !ok {
		return nil, false, nil
	}
	return append([]receiving.OrderSummary(nil), orders...), true, nil
}

// Set stores a copy of orders. A zero ttl disables caching.
func (c *MemorySummaryCache) Set(_ context.Context, tenantID uuid.UUID, orders []receiving.OrderSummary, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.entries.set(tenantID, append([]receiving.OrderSummary(nil), orders...), ttl)
	return nil
}

// Invalidate drops the tenant's list
func (c *MemorySummaryCache) Invalidate(_ context.Context, tenantID uuid.UUID) error {
	c.entries.delete(tenantID)
	return nil
}

// Close stops the sweeper
func (c *MemorySummaryCache) Close() error {
	c.entries.close()
	return nil
}

// RedisSummaryCache is a SummaryStore shared between replicas. Lists are stored as JSON.
type RedisSummaryCache struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisSummaryCache stores lists under keyPrefix + "orders:pending:<tenant>"
func NewRedisSummaryCache(client redis.UniversalClient, keyPrefix string) *RedisSummaryCache {
	return &RedisSummaryCache{client: client, keyPrefix: keyPrefix + "orders:pending:"}
}

func (c *RedisSummaryCache) key(tenantID uuid.UUID) string {
	return c.keyPrefix + tenantID.String()
}

// Get implements SummaryStore
func (c *RedisSummaryCache) Get(ctx context.Context, tenantID uuid.UUID) ([]receiving.OrderSummary, bool, error) {
	raw, err := c.client.Get(ctx, c.key(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read order summaries: %w", err)
	}
	var orders []receiving.OrderSummary
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil, false, fmt.Errorf("failed to decode order summaries: %w", err)
	}
	return orders, true, nil
}

// Set implements SummaryStore. A zero ttl disables caching.
func (c *RedisSummaryCache) Set(ctx context.Context, tenantID uuid.UUID, orders []receiving.OrderSummary, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("failed to encode order summaries: %w", err)
	}
	if err := c.client.Set(ctx, c.key(tenantID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write order summaries: %w", err)
	}
	return nil
}

// Invalidate implements SummaryStore
func (c *RedisSummaryCache) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	if err := c.client.Del(ctx, c.key(tenantID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate order summaries: %w", err)
	}
	return nil
}

var (
	_ SummaryStore = (*MemorySummaryCache)(nil)
	_ SummaryStore = (*RedisSummaryCache)(nil)
)
