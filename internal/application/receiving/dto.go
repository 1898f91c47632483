package receiving

import (
	"time"

	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/erp/receiving/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineView is an order line with the quantity queued for it in this session
type LineView struct {
	ID               uuid.UUID       `json:"id"`
	ProductID        uuid.UUID       `json:"product_id"`
	ProductName      string          `json:"product_name"`
	SKU              string          `json:"sku"`
	Barcode          string          `json:"barcode,omitempty"`
	QuantityOrdered  decimal.Decimal `json:"quantity_ordered"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
	QuantityPending  decimal.Decimal `json:"quantity_pending"`
	QuantityQueued   decimal.Decimal `json:"quantity_queued"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
}

// ToLineView converts a line, given the quantity already queued for it
func ToLineView(line *receiving.OrderLine, queued decimal.Decimal) LineView {
	return LineView{
		ID:               line.ID,
		ProductID:        line.ProductID,
		ProductName:      line.ProductName,
		SKU:              line.SKU,
		Barcode:          line.BarcodeValue(),
		QuantityOrdered:  line.QuantityOrdered,
		QuantityReceived: line.QuantityReceived,
		QuantityPending:  line.QuantityPending(),
		QuantityQueued:   queued,
		UnitCost:         line.UnitCost,
	}
}

// OrderHeader identifies the order being received
type OrderHeader struct {
	ID           uuid.UUID `json:"id"`
	OrderNumber  string    `json:"order_number"`
	SupplierName string    `json:"supplier_name"`
	LocationName string    `json:"location_name"`
}

// PendingConfirmation is the line awaiting a quantity in CONFIRMING_QUANTITY
type PendingConfirmation struct {
	Line             LineView              `json:"line"`
	ProposedQuantity decimal.Decimal       `json:"proposed_quantity"`
	Source           receiving.EntrySource `json:"source"`
}

// ErrorView is an error as shown to the operator
type ErrorView struct {
	Code    string              `json:"code"`
	Kind    receiving.ErrorKind `json:"kind"`
	Message string              `json:"message"`
}

// NewErrorView converts err for display
func NewErrorView(err error) *ErrorView {
	if err == nil {
		return nil
	}
	code := shared.ErrorCode(err)
	if code == "" {
		code = receiving.CodeTransportFailure
	}
	return &ErrorView{Code: code, Kind: receiving.KindOf(err), Message: err.Error()}
}

// SessionView is a consistent read-only picture of a session
type SessionView struct {
	SessionID   uuid.UUID               `json:"session_id"`
	TenantID    uuid.UUID               `json:"tenant_id"`
	DeviceID    string                  `json:"device_id"`
	State       receiving.SessionState  `json:"state"`
	AutoConfirm bool                    `json:"auto_confirm"`
	Order       *OrderHeader            `json:"order,omitempty"`
	Lines       []LineView              `json:"lines,omitempty"`
	Queue       receiving.QueueSnapshot `json:"queue"`
	Pending     *PendingConfirmation    `json:"pending,omitempty"`
	LastError   *ErrorView              `json:"last_error,omitempty"`
	LastReceipt *FinalizeResult         `json:"last_receipt,omitempty"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Outcome is the result of one controller command
type Outcome struct {
	State            receiving.SessionState   `json:"state"`
	Line             *LineView                `json:"line,omitempty"`
	ProposedQuantity *decimal.Decimal         `json:"proposed_quantity,omitempty"`
	Entry            *receiving.QueueEntry    `json:"entry,omitempty"`
	Acknowledged     bool                     `json:"acknowledged"`
	Lines            []LineView               `json:"lines,omitempty"`
	Queue            *receiving.QueueSnapshot `json:"queue,omitempty"`
	Receipt          *FinalizeResult          `json:"receipt,omitempty"`
	Warnings         []receiving.Warning      `json:"warnings,omitempty"`
}

// HasWarning reports whether the outcome carries the given warning code
func (o Outcome) HasWarning(code string) bool {
	for _, w := range o.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// FinalizeOptions are the operator-supplied parts of a finalization
type FinalizeOptions struct {
	ReceivingDate *time.Time
	Notes         string
	LineNotes     map[uuid.UUID]string
}
