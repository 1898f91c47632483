package erpclient

import (
	"encoding/json"
	"time"

	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// envelope is the ERP's standard response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *envelopeError  `json:"error,omitempty"`
	Meta    *pageMeta       `json:"meta,omitempty"`
}

// pageMeta is the pagination block of list responses
type pageMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// pendingOrderDTO is one entry of GET /purchase-orders/pending-receipt
type pendingOrderDTO struct {
	ID               uuid.UUID       `json:"id"`
	OrderNumber      string          `json:"order_number"`
	SupplierName     string          `json:"supplier_name"`
	Status           string          `json:"status"`
	ItemCount        int             `json:"item_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	TotalQuantity    decimal.Decimal `json:"total_quantity"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity"`
	OrderDate        *time.Time      `json:"order_date,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (d pendingOrderDTO) toDomain() receiving.OrderSummary {
	orderDate := d.CreatedAt
	if d.OrderDate != nil {
		orderDate = *d.OrderDate
	}
	pending := d.TotalQuantity.Sub(d.ReceivedQuantity)
	if pending.IsNegative() {
		pending = decimal.Zero
	}
	return receiving.OrderSummary{
		ID:            d.ID,
		OrderNumber:   d.OrderNumber,
		SupplierName:  d.SupplierName,
		OrderDate:     orderDate,
		Status:        d.Status,
		TotalItems:    d.ItemCount,
		TotalReceived: d.ReceivedQuantity,
		TotalPending:  pending,
		TotalAmount:   d.TotalAmount,
	}
}

// receivingOrderDTO is GET /purchase-orders/{id}/receiving
type receivingOrderDTO struct {
	ID            uuid.UUID          `json:"id"`
	OrderNumber   string             `json:"order_number"`
	SupplierName  string             `json:"supplier_name"`
	WarehouseName string             `json:"warehouse_name"`
	Items         []receivingItemDTO `json:"items"`
}

type receivingItemDTO struct {
	ID               uuid.UUID       `json:"id"`
	ProductID        uuid.UUID       `json:"product_id"`
	ProductName      string          `json:"product_name"`
	ProductCode      string          `json:"product_code"`
	Barcode          *string         `json:"barcode,omitempty"`
	OrderedQuantity  decimal.Decimal `json:"ordered_quantity"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
}

func (d receivingOrderDTO) toDomain() *receiving.OrderDetail {
	lines := make([]receiving.OrderLine, len(d.Items))
	for i, item := range d.Items {
		var barcode *string
		if item.Barcode != nil && *item.Barcode != "" {
			code := *item.Barcode
			barcode = &code
		}
		lines[i] = receiving.OrderLine{
			ID:               item.ID,
			ProductID:        item.ProductID,
			ProductName:      item.ProductName,
			SKU:              item.ProductCode,
			Barcode:          barcode,
			QuantityOrdered:  item.OrderedQuantity,
			QuantityReceived: item.ReceivedQuantity,
			UnitCost:         item.UnitCost,
		}
	}
	return &receiving.OrderDetail{
		ID:           d.ID,
		OrderNumber:  d.OrderNumber,
		SupplierName: d.SupplierName,
		LocationName: d.WarehouseName,
		Lines:        lines,
	}
}

// finalizeRequestDTO is the body of POST /purchase-orders/{id}/receiving/finalize
type finalizeRequestDTO struct {
	ReceivingDate string            `json:"receiving_date"`
	Notes         string            `json:"notes,omitempty"`
	Items         []finalizeItemDTO `json:"items"`
}

type finalizeItemDTO struct {
	OrderLineID      uuid.UUID       `json:"order_line_id"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
	Notes            string          `json:"notes,omitempty"`
}

type finalizeResultDTO struct {
	ReceiptNumber   string `json:"receipt_number"`
	OrderStatus     string `json:"order_status"`
	IsFullyReceived bool   `json:"is_fully_received"`
}
