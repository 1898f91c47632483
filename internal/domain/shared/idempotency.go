package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed event IDs so a redelivered event is handled once
type IdempotencyStore interface {
	// MarkProcessed returns true if the ID was newly marked, false if it was already present
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	Close() error
}

// IdempotencyConfig holds configuration for idempotent event handling
type IdempotencyConfig struct {
	TTL     time.Duration
	Enabled bool
}

// DefaultIdempotencyConfig returns a 24h TTL with checking enabled
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
