package receiving

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func strPtr(s string) *string { return &s }

func newTestLine(name, sku, barcode string, ordered, received, cost int64) OrderLine {
	var code *string
	if barcode != "" {
		code = strPtr(barcode)
	}
	return OrderLine{
		ID:               uuid.New(),
		ProductID:        uuid.New(),
		ProductName:      name,
		SKU:              sku,
		Barcode:          code,
		QuantityOrdered:  decimal.NewFromInt(ordered),
		QuantityReceived: decimal.NewFromInt(received),
		UnitCost:         decimal.NewFromInt(cost),
	}
}

func newTestDetail(lines ...OrderLine) *OrderDetail {
	return &OrderDetail{
		ID:           uuid.New(),
		OrderNumber:  "PO-2026-0001",
		SupplierName: "Acme Supplies",
		LocationName: "Main Warehouse",
		Lines:        lines,
	}
}
