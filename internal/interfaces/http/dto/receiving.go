package dto

import "github.com/shopspring/decimal"

// SelectOrderRequest starts receiving against an order
type SelectOrderRequest struct {
	OrderID string `json:"order_id" binding:"required,uuid"`
}

// ScanRequest carries one decoded barcode
type ScanRequest struct {
	Barcode string `json:"barcode" binding:"required,max=128"`
}

// ConfirmQuantityRequest accepts a quantity as a JSON number or string
type ConfirmQuantityRequest struct {
	Quantity *decimal.Decimal `json:"quantity" binding:"required"`
}

// SelectLineRequest picks an order line from manual search
type SelectLineRequest struct {
	OrderLineID string `json:"order_line_id" binding:"required,uuid"`
}

// FinalizeRequest submits the queue. ReceivingDate defaults to today and
// LineNotes is keyed by order line ID.
type FinalizeRequest struct {
	ReceivingDate string            `json:"receiving_date" binding:"omitempty,datetime=2006-01-02"`
	Notes         string            `json:"notes" binding:"max=500"`
	LineNotes     map[string]string `json:"line_notes"`
}

// SearchLinesRequest is the manual-entry search query
type SearchLinesRequest struct {
	Query string `form:"q" binding:"max=100"`
}
