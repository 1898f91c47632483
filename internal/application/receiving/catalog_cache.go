package receiving

import (
	"context"
	"time"

	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/erp/receiving/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SummaryCache stores pending order lists per tenant
type SummaryCache interface {
	Get(ctx context.Context, tenantID uuid.UUID) ([]receiving.OrderSummary, bool, error)
	Set(ctx context.Context, tenantID uuid.UUID, orders []receiving.OrderSummary, ttl time.Duration) error
	Invalidate(ctx context.Context, tenantID uuid.UUID) error
}

// CachedOrderCatalog caches ListPending results. Order detail is always read
// through, since a session works against the detail fetched at selection time.
type CachedOrderCatalog struct {
	next   OrderCatalog
	cache  SummaryCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedOrderCatalog wraps next with a summary cache
func NewCachedOrderCatalog(next OrderCatalog, cache SummaryCache, ttl time.Duration, logger *zap.Logger) *CachedOrderCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedOrderCatalog{next: next, cache: cache, ttl: ttl, logger: logger}
}

// ListPending returns the cached list when present, otherwise loads and caches it.
// Cache errors are logged and never fail the call.
func (c *CachedOrderCatalog) ListPending(ctx context.Context, tenantID uuid.UUID) ([]receiving.OrderSummary, error) {
	orders, ok, err := c.cache.Get(ctx, tenantID)
	if err != nil {
		c.logger.Warn("order summary cache read failed",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	} else if ok {
		return orders, nil
	}

	orders, err = c.next.ListPending(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, tenantID, orders, c.ttl); err != nil {
		c.logger.Warn("order summary cache write failed",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	}
	return orders, nil
}

// GetDetail implements OrderCatalog
func (c *CachedOrderCatalog) GetDetail(ctx context.Context, tenantID, orderID uuid.UUID) (*receiving.OrderDetail, error) {
	return c.next.GetDetail(ctx, tenantID, orderID)
}

// EventTypes implements shared.EventHandler
func (c *CachedOrderCatalog) EventTypes() []string {
	return []string{receiving.EventTypeReceiptFinalized}
}

// Handle drops the tenant's cached list once a receipt changes pending quantities
func (c *CachedOrderCatalog) Handle(ctx context.Context, event shared.DomainEvent) error {
	if err := c.cache.Invalidate(ctx, event.TenantID()); err != nil {
		return err
	}
	c.logger.Debug("order summary cache invalidated",
		zap.String("tenant_id", event.TenantID().String()),
		zap.String("event_type", event.EventType()),
	)
	return nil
}

var (
	_ OrderCatalog       = (*CachedOrderCatalog)(nil)
	_ shared.EventHandler = (*CachedOrderCatalog)(nil)
)
