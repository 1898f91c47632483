package receiving

import (
	"context"
	"time"

	"github.com/erp/receiving/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AttemptOutcome is the result of one finalization attempt
type AttemptOutcome string

const (
	AttemptSucceeded AttemptOutcome = "SUCCEEDED"
	AttemptFailed    AttemptOutcome = "FAILED"
)

// ReceiptAttempt is the audit record of one call to the finalization gateway
type ReceiptAttempt struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	DeviceID       string          `json:"device_id"`
	SessionID      uuid.UUID       `json:"session_id"`
	OrderID        uuid.UUID       `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	ReceivingDate  time.Time       `json:"receiving_date"`
	ItemCount      int             `json:"item_count"`
	TotalQuantity  decimal.Decimal `json:"total_quantity"`
	TotalValue     decimal.Decimal `json:"total_value"`
	Outcome        AttemptOutcome  `json:"outcome"`
	ErrorCode      string          `json:"error_code,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ReceiptNumber  string          `json:"receipt_number,omitempty"`
	IdempotencyKey uuid.UUID       `json:"idempotency_key"`
	AttemptedAt    time.Time       `json:"attempted_at"`
}

// ReceiptJournal stores finalization attempts
type ReceiptJournal interface {
	Record(ctx context.Context, attempt *ReceiptAttempt) error
	ListByOrder(ctx context.Context, tenantID, orderID uuid.UUID, filter shared.Filter) (shared.Paginated[ReceiptAttempt], error)
}
