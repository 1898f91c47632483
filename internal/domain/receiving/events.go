package receiving

import (
	"time"

	"github.com/erp/receiving/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeReceivingSession = "ReceivingSession"

// Event type constants
const (
	EventTypeSessionStarted     = "ReceivingSessionStarted"
	EventTypeSessionCancelled   = "ReceivingSessionCancelled"
	EventTypeStateChanged       = "ReceivingStateChanged"
	EventTypeItemQueued         = "ReceivingItemQueued"
	EventTypeItemRemoved        = "ReceivingItemRemoved"
	EventTypeScanRejected       = "ReceivingScanRejected"
	EventTypeReceiptFinalized   = "ReceiptFinalized"
	EventTypeFinalizationFailed = "ReceiptFinalizationFailed"
)

// SessionRef identifies the session an event belongs to
type SessionRef struct {
	SessionID uuid.UUID
	TenantID  uuid.UUID
	DeviceID  string
}

func newSessionEvent(eventType string, ref SessionRef) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, AggregateTypeReceivingSession, ref.SessionID, ref.TenantID)
}

// SessionStartedEvent is raised when an order's detail has loaded and scanning can begin
type SessionStartedEvent struct {
	shared.BaseDomainEvent
	DeviceID     string    `json:"device_id"`
	OrderID      uuid.UUID `json:"order_id"`
	OrderNumber  string    `json:"order_number"`
	SupplierName string    `json:"supplier_name"`
	LineCount    int       `json:"line_count"`
}

// NewSessionStartedEvent creates a new SessionStartedEvent
func NewSessionStartedEvent(ref SessionRef, detail *OrderDetail) *SessionStartedEvent {
	return &SessionStartedEvent{
		BaseDomainEvent: newSessionEvent(EventTypeSessionStarted, ref),
		DeviceID:        ref.DeviceID,
		OrderID:         detail.ID,
		OrderNumber:     detail.OrderNumber,
		SupplierName:    detail.SupplierName,
		LineCount:       len(detail.Lines),
	}
}

// SessionCancelledEvent is raised on an explicit cancel. DiscardedItems is the
// number of queue entries thrown away.
type SessionCancelledEvent struct {
	shared.BaseDomainEvent
	DeviceID       string    `json:"device_id"`
	OrderID        uuid.UUID `json:"order_id"`
	DiscardedItems int       `json:"discarded_items"`
}

// NewSessionCancelledEvent creates a new SessionCancelledEvent
func NewSessionCancelledEvent(ref SessionRef, orderID uuid.UUID, discarded int) *SessionCancelledEvent {
	return &SessionCancelledEvent{
		BaseDomainEvent: newSessionEvent(EventTypeSessionCancelled, ref),
		DeviceID:        ref.DeviceID,
		OrderID:         orderID,
		DiscardedItems:  discarded,
	}
}

// StateChangedEvent is raised on every state machine transition
type StateChangedEvent struct {
	shared.BaseDomainEvent
	DeviceID string       `json:"device_id"`
	From     SessionState `json:"from"`
	To       SessionState `json:"to"`
}

// NewStateChangedEvent creates a new StateChangedEvent
func NewStateChangedEvent(ref SessionRef, from, to SessionState) *StateChangedEvent {
	return &StateChangedEvent{
		BaseDomainEvent: newSessionEvent(EventTypeStateChanged, ref),
		DeviceID:        ref.DeviceID,
		From:            from,
		To:              to,
	}
}

// ItemQueuedEvent is raised after a confirmed quantity is added to the queue.
// It doubles as the success acknowledgement for the scanning device.
type ItemQueuedEvent struct {
	shared.BaseDomainEvent
	DeviceID        string          `json:"device_id"`
	OrderID         uuid.UUID       `json:"order_id"`
	OrderLineID     uuid.UUID       `json:"order_line_id"`
	SKU             string          `json:"sku"`
	Quantity        decimal.Decimal `json:"quantity"`
	QueuedQuantity  decimal.Decimal `json:"queued_quantity"`
	PendingQuantity decimal.Decimal `json:"pending_quantity"`
	OverReceipt     bool            `json:"over_receipt"`
	Source          EntrySource     `json:"source"`
}

// NewItemQueuedEvent creates a new ItemQueuedEvent
func NewItemQueuedEvent(ref SessionRef, orderID uuid.UUID, line *OrderLine, quantity decimal.Decimal, entry QueueEntry, source EntrySource) *ItemQueuedEvent {
	pending := line.QuantityPending()
	return &ItemQueuedEvent{
		BaseDomainEvent: newSessionEvent(EventTypeItemQueued, ref),
		DeviceID:        ref.DeviceID,
		OrderID:         orderID,
		OrderLineID:     line.ID,
		SKU:             line.SKU,
		Quantity:        quantity,
		QueuedQuantity:  entry.Quantity,
		PendingQuantity: pending,
		OverReceipt:     entry.Quantity.GreaterThan(pending),
		Source:          source,
	}
}

// ItemRemovedEvent is raised when an entry is removed from the summary
type ItemRemovedEvent struct {
	shared.BaseDomainEvent
	DeviceID    string    `json:"device_id"`
	OrderID     uuid.UUID `json:"order_id"`
	OrderLineID uuid.UUID `json:"order_line_id"`
}

// NewItemRemovedEvent creates a new ItemRemovedEvent
func NewItemRemovedEvent(ref SessionRef, orderID, lineID uuid.UUID) *ItemRemovedEvent {
	return &ItemRemovedEvent{
		BaseDomainEvent: newSessionEvent(EventTypeItemRemoved, ref),
		DeviceID:        ref.DeviceID,
		OrderID:         orderID,
		OrderLineID:     lineID,
	}
}

// ScanRejectedEvent is raised when a scan or manual selection is refused
type ScanRejectedEvent struct {
	shared.BaseDomainEvent
	DeviceID string `json:"device_id"`
	Barcode  string `json:"barcode,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// NewScanRejectedEvent creates a new ScanRejectedEvent
func NewScanRejectedEvent(ref SessionRef, barcode string, err error) *ScanRejectedEvent {
	return &ScanRejectedEvent{
		BaseDomainEvent: newSessionEvent(EventTypeScanRejected, ref),
		DeviceID:        ref.DeviceID,
		Barcode:         barcode,
		Code:            shared.ErrorCode(err),
		Message:         err.Error(),
	}
}

// ReceiptFinalizedEvent is raised after the gateway accepted the queue
type ReceiptFinalizedEvent struct {
	shared.BaseDomainEvent
	DeviceID      string          `json:"device_id"`
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	ReceiptNumber string          `json:"receipt_number,omitempty"`
	ReceivingDate time.Time       `json:"receiving_date"`
	ItemCount     int             `json:"item_count"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	TotalValue    decimal.Decimal `json:"total_value"`
	FullyReceived bool            `json:"fully_received"`
}

// NewReceiptFinalizedEvent creates a new ReceiptFinalizedEvent
func NewReceiptFinalizedEvent(ref SessionRef, detail *OrderDetail, snapshot QueueSnapshot, receivingDate time.Time, receiptNumber string, fullyReceived bool) *ReceiptFinalizedEvent {
	return &ReceiptFinalizedEvent{
		BaseDomainEvent: newSessionEvent(EventTypeReceiptFinalized, ref),
		DeviceID:        ref.DeviceID,
		OrderID:         detail.ID,
		OrderNumber:     detail.OrderNumber,
		ReceiptNumber:   receiptNumber,
		ReceivingDate:   receivingDate,
		ItemCount:       snapshot.ItemCount,
		TotalQuantity:   snapshot.TotalQuantity,
		TotalValue:      snapshot.TotalValue,
		FullyReceived:   fullyReceived,
	}
}

// FinalizationFailedEvent is raised when the gateway call fails. The queue is kept.
type FinalizationFailedEvent struct {
	shared.BaseDomainEvent
	DeviceID  string    `json:"device_id"`
	OrderID   uuid.UUID `json:"order_id"`
	ItemCount int       `json:"item_count"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
}

// NewFinalizationFailedEvent creates a new FinalizationFailedEvent
func NewFinalizationFailedEvent(ref SessionRef, orderID uuid.UUID, itemCount int, err error) *FinalizationFailedEvent {
	return &FinalizationFailedEvent{
		BaseDomainEvent: newSessionEvent(EventTypeFinalizationFailed, ref),
		DeviceID:        ref.DeviceID,
		OrderID:         orderID,
		ItemCount:       itemCount,
		Code:            shared.ErrorCode(err),
		Message:         err.Error(),
	}
}

// EntrySource tells how a line reached the confirmation step
type EntrySource string

const (
	SourceScan   EntrySource = "SCAN"
	SourceManual EntrySource = "MANUAL"
)
