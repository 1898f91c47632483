package erpclient

import (
	"context"
	"fmt"
	"net/http"

	appreceiving "github.com/erp/receiving/internal/application/receiving"
	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Finalize submits the receipt in one call. It is never retried here; a
// resubmission by the operator reuses the request's idempotency key.
func (c *Client) Finalize(ctx context.Context, tenantID uuid.UUID, req appreceiving.FinalizeRequest) (*appreceiving.FinalizeResult, error) {
	body := finalizeRequestDTO{
		ReceivingDate: req.ReceivingDate.Format("2006-01-02"),
		Notes:         req.Notes,
		Items:         make([]finalizeItemDTO, len(req.Items)),
	}
	for i, item := range req.Items {
		body.Items[i] = finalizeItemDTO{
			OrderLineID:      item.OrderLineID,
			QuantityReceived: item.QuantityReceived,
			Notes:            item.Notes,
		}
	}

	headers := map[string]string{}
	if req.IdempotencyKey != uuid.Nil {
		headers["Idempotency-Key"] = req.IdempotencyKey.String()
	}

	var result finalizeResultDTO
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     fmt.Sprintf("%s/%s/receiving/finalize", apiPrefix, req.OrderID),
		tenantID: tenantID,
		body:     body,
		headers:  headers,
	}, &result)
	if isNotFound(err) {
		return nil, receiving.NewOrderNotFoundError(fmt.Sprintf("Order %s was not found", req.OrderID), err)
	}
	if err != nil {
		c.logger.Error("ERP finalize failed",
			zap.String("order_id", req.OrderID.String()),
			zap.String("idempotency_key", req.IdempotencyKey.String()),
			zap.Error(err),
		)
		return nil, transportError("Finalization was not accepted by the ERP", err)
	}

	return &appreceiving.FinalizeResult{
		ReceiptNumber: result.ReceiptNumber,
		OrderStatus:   result.OrderStatus,
		FullyReceived: result.IsFullyReceived,
	}, nil
}

var _ appreceiving.FinalizationGateway = (*Client)(nil)
