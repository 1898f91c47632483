package receiving

import (
	"context"
	"time"

	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderCatalog reads purchase orders awaiting receipt
type OrderCatalog interface {
	ListPending(ctx context.Context, tenantID uuid.UUID) ([]receiving.OrderSummary, error)
	GetDetail(ctx context.Context, tenantID, orderID uuid.UUID) (*receiving.OrderDetail, error)
}

// FinalizationGateway submits a receiving queue to the ERP in one call.
// The call is all-or-nothing; the gateway never retries on its own.
type FinalizationGateway interface {
	Finalize(ctx context.Context, tenantID uuid.UUID, req FinalizeRequest) (*FinalizeResult, error)
}

// FinalizeItem is one queue entry as sent to the gateway
type FinalizeItem struct {
	OrderLineID      uuid.UUID       `json:"order_line_id"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
	Notes            string          `json:"notes,omitempty"`
}

// FinalizeRequest is the payload of a finalization call
type FinalizeRequest struct {
	OrderID        uuid.UUID      `json:"order_id"`
	ReceivingDate  time.Time      `json:"receiving_date"`
	Notes          string         `json:"notes,omitempty"`
	Items          []FinalizeItem `json:"items"`
	// IdempotencyKey is shared by every attempt to submit one unchanged
	// queue and differs between separate receipts
	IdempotencyKey uuid.UUID      `json:"-"`
}

// FinalizeResult is what the ERP reports back after accepting a receipt
type FinalizeResult struct {
	ReceiptNumber string `json:"receipt_number,omitempty"`
	OrderStatus   string `json:"order_status,omitempty"`
	FullyReceived bool   `json:"fully_received"`
}
