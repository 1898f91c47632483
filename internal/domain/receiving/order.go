package receiving

import (
	"fmt"
	"time"

	"github.com/erp/receiving/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSummary is a read-only snapshot of a purchase order pending receipt,
// as shown on the order selection screen
type OrderSummary struct {
	ID            uuid.UUID       `json:"id"`
	OrderNumber   string          `json:"order_number"`
	SupplierName  string          `json:"supplier_name"`
	OrderDate     time.Time       `json:"order_date"`
	Status        string          `json:"status"`
	TotalItems    int             `json:"total_items"`
	TotalReceived decimal.Decimal `json:"total_received"`
	TotalPending  decimal.Decimal `json:"total_pending"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// OrderLine is a single line of a purchase order.
// A line without a barcode can only be reached through manual search.
type OrderLine struct {
	ID               uuid.UUID       `json:"id"`
	ProductID        uuid.UUID       `json:"product_id"`
	ProductName      string          `json:"product_name"`
	SKU              string          `json:"sku"`
	Barcode          *string         `json:"barcode,omitempty"`
	QuantityOrdered  decimal.Decimal `json:"quantity_ordered"`
	QuantityReceived decimal.Decimal `json:"quantity_received"` // received before the current session
	UnitCost         decimal.Decimal `json:"unit_cost"`
}

// QuantityPending returns ordered minus received, never negative
func (l *OrderLine) QuantityPending() decimal.Decimal {
	pending := l.QuantityOrdered.Sub(l.QuantityReceived)
	if pending.IsNegative() {
		return decimal.Zero
	}
	return pending
}

// IsFullyReceived returns true if nothing is left to receive on this line
func (l *OrderLine) IsFullyReceived() bool {
	return !l.QuantityPending().IsPositive()
}

// HasBarcode returns true if the line can be resolved by scanning
func (l *OrderLine) HasBarcode() bool {
	return l.Barcode != nil && *l.Barcode != ""
}

// BarcodeValue returns the barcode or an empty string
func (l *OrderLine) BarcodeValue() string {
	if l.Barcode == nil {
		return ""
	}
	return *l.Barcode
}

// OrderDetail is the canonical item list of one order, fetched once per
// receiving session and never mutated locally
type OrderDetail struct {
	ID           uuid.UUID   `json:"id"`
	OrderNumber  string      `json:"order_number"`
	SupplierName string      `json:"supplier_name"`
	LocationName string      `json:"location_name"`
	Lines        []OrderLine `json:"lines"`
}

// Validate checks the structural invariants the workflow relies on
func (d *OrderDetail) Validate() error {
	if d.ID == uuid.Nil {
		return shared.NewDomainError(CodeInvalidOrder, "Order ID cannot be empty")
	}
	seen := make(map[uuid.UUID]struct{}, len(d.Lines))
	for i := range d.Lines {
		line := &d.Lines[i]
		if line.ID == uuid.Nil {
			return shared.NewDomainError(CodeInvalidOrder, fmt.Sprintf("Line %d of order %s has no ID", i+1, d.OrderNumber))
		}
		if _, dup := seen[line.ID]; dup {
			return shared.NewDomainError(CodeInvalidOrder, fmt.Sprintf("Line %s appears more than once in order %s", line.ID, d.OrderNumber))
		}
		seen[line.ID] = struct{}{}
	}
	return nil
}

// Line returns the line with the given ID, or nil
func (d *OrderDetail) Line(lineID uuid.UUID) *OrderLine {
	for i := range d.Lines {
		if d.Lines[i].ID == lineID {
			return &d.Lines[i]
		}
	}
	return nil
}

// DuplicateBarcodes returns barcodes shared by more than one line, with the
// IDs of the lines carrying them in line order
func (d *OrderDetail) DuplicateBarcodes() map[string][]uuid.UUID {
	byCode := make(map[string][]uuid.UUID)
	for i := range d.Lines {
		if !d.Lines[i].HasBarcode() {
			continue
		}
		code := *d.Lines[i].Barcode
		byCode[code] = append(byCode[code], d.Lines[i].ID)
	}
	dups := make(map[string][]uuid.UUID)
	for code, ids := range byCode {
		if len(ids) > 1 {
			dups[code] = ids
		}
	}
	return dups
}

// TotalPending returns the sum of pending quantities over all lines
func (d *OrderDetail) TotalPending() decimal.Decimal {
	total := decimal.Zero
	for i := range d.Lines {
		total = total.Add(d.Lines[i].QuantityPending())
	}
	return total
}

// NewQueueEntry builds a queue entry for the line, capturing its unit cost
func (l *OrderLine) NewQueueEntry(quantity decimal.Decimal) QueueEntry {
	return QueueEntry{
		OrderLineID: l.ID,
		ProductID:   l.ProductID,
		ProductName: l.ProductName,
		SKU:         l.SKU,
		Barcode:     l.BarcodeValue(),
		Quantity:    quantity,
		UnitCost:    l.UnitCost,
	}
}
