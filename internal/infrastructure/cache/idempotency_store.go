package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/receiving/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

// InMemoryIdempotencyStore keeps processed event IDs in process memory.
// It does not share state between replicas.
type InMemoryIdempotencyStore struct {
	keys *ttlMap[string, struct{}]
}

// NewInMemoryIdempotencyStore creates a store that sweeps expired IDs every five minutes
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{keys: newTTLMap[string, struct{}](5 * time.Minute)}
}

// MarkProcessed returns true if eventID was not already marked
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	return s.keys.setIfAbsent(eventID, struct{}{}, ttl), nil
}

// IsProcessed reports whether eventID is marked and not expired
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	_, ok := s.keys.get(eventID)
	return ok, nil
}

// Size returns the number of stored IDs, expired ones included until swept
func (s *InMemoryIdempotencyStore) Size() int {
	return s.keys.len()
}

// Close stops the sweeper. Safe to call more than once.
func (s *InMemoryIdempotencyStore) Close() error {
	s.keys.close()
	return nil
}

// RedisIdempotencyStore shares processed event IDs between replicas using SET NX
type RedisIdempotencyStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisIdempotencyStore uses client under keyPrefix + "idempotency:".
// The client is not closed by Close.
func NewRedisIdempotencyStore(client redis.UniversalClient, keyPrefix string) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, keyPrefix: keyPrefix + "idempotency:"}
}

// MarkProcessed returns true if eventID was not already marked
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+eventID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event %s as processed: %w", eventID, err)
	}
	return ok, nil
}

// IsProcessed reports whether eventID is marked
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check event %s: %w", eventID, err)
	}
	return n > 0, nil
}

// Close is a no-op; the client belongs to whoever created it
func (s *RedisIdempotencyStore) Close() error {
	return nil
}

var (
	_ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
	_ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
)
