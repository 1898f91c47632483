package receiving

import (
	"context"
	"sync"
	"time"

	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/erp/receiving/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockOrderCatalog is a mock implementation of OrderCatalog
type MockOrderCatalog struct {
	mock.Mock
}

func (m *MockOrderCatalog) ListPending(ctx context.Context, tenantID uuid.UUID) ([]receiving.OrderSummary, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]receiving.OrderSummary), args.Error(1)
}

func (m *MockOrderCatalog) GetDetail(ctx context.Context, tenantID, orderID uuid.UUID) (*receiving.OrderDetail, error) {
	args := m.Called(ctx, tenantID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*receiving.OrderDetail), args.Error(1)
}

// MockFinalizationGateway is a mock implementation of FinalizationGateway
type MockFinalizationGateway struct {
	mock.Mock
}

func (m *MockFinalizationGateway) Finalize(ctx context.Context, tenantID uuid.UUID, req FinalizeRequest) (*FinalizeResult, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FinalizeResult), args.Error(1)
}

// MockReceiptJournal is a mock implementation of receiving.ReceiptJournal
type MockReceiptJournal struct {
	mock.Mock
}

func (m *MockReceiptJournal) Record(ctx context.Context, attempt *receiving.ReceiptAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockReceiptJournal) ListByOrder(ctx context.Context, tenantID, orderID uuid.UUID, filter shared.Filter) (shared.Paginated[receiving.ReceiptAttempt], error) {
	args := m.Called(ctx, tenantID, orderID, filter)
	return args.Get(0).(shared.Paginated[receiving.ReceiptAttempt]), args.Error(1)
}

// MockSummaryCache is a mock implementation of SummaryCache
type MockSummaryCache struct {
	mock.Mock
}

func (m *MockSummaryCache) Get(ctx context.Context, tenantID uuid.UUID) ([]receiving.OrderSummary, bool, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]receiving.OrderSummary), args.Bool(1), args.Error(2)
}

func (m *MockSummaryCache) Set(ctx context.Context, tenantID uuid.UUID, orders []receiving.OrderSummary, ttl time.Duration) error {
	args := m.Called(ctx, tenantID, orders, ttl)
	return args.Error(0)
}

func (m *MockSummaryCache) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func strPtr(s string) *string {
	return &s
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func newLine(name, sku, barcode string, ordered, received, cost int64) receiving.OrderLine {
	line := receiving.OrderLine{
		ID:               uuid.New(),
		ProductID:        uuid.New(),
		ProductName:      name,
		SKU:              sku,
		QuantityOrdered:  dec(ordered),
		QuantityReceived: dec(received),
		UnitCost:         dec(cost),
	}
	if barcode != "" {
		line.Barcode = strPtr(barcode)
	}
	return line
}

func newDetail(lines ...receiving.OrderLine) *receiving.OrderDetail {
	return &receiving.OrderDetail{
		ID:           uuid.New(),
		OrderNumber:  "PO-2026-0001",
		SupplierName: "Acme Supplies",
		LocationName: "Main Warehouse",
		Lines:        lines,
	}
}
