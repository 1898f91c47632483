package erpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	appreceiving "github.com/erp/receiving/internal/application/receiving"
	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/google/uuid"
)

// ListPending returns the tenant's orders awaiting receipt, following the
// ERP's pagination until every page has been read
func (c *Client) ListPending(ctx context.Context, tenantID uuid.UUID) ([]receiving.OrderSummary, error) {
	var orders []receiving.OrderSummary
	for page := 1; ; page++ {
		var (
			rows []pendingOrderDTO
			meta pageMeta
		)
		err := c.get(ctx, request{
			method:   http.MethodGet,
			path:     apiPrefix + "/pending-receipt",
			query:    url.Values{"page": {strconv.Itoa(page)}, "page_size": {strconv.Itoa(c.pageSize)}},
			tenantID: tenantID,
			meta:     &meta,
		}, &rows)
		if err != nil {
			return nil, transportError("Could not load pending orders", err)
		}

		for _, row := range rows {
			orders = append(orders, row.toDomain())
		}
		if !hasNextPage(meta, page, len(rows), len(orders)) {
			break
		}
	}
	if orders == nil {
		orders = []receiving.OrderSummary{}
	}
	return orders, nil
}

// hasNextPage reports whether another page follows. A response without
// pagination metadata is a complete list.
func hasNextPage(meta pageMeta, page, rows, collected int) bool {
	if rows == 0 {
		return false
	}
	if meta.TotalPages > 0 {
		return page < meta.TotalPages
	}
	return meta.Total > int64(collected)
}

// GetDetail returns an order with its lines
func (c *Client) GetDetail(ctx context.Context, tenantID, orderID uuid.UUID) (*receiving.OrderDetail, error) {
	var dto receivingOrderDTO
	err := c.get(ctx, request{
		method:   http.MethodGet,
		path:     fmt.Sprintf("%s/%s/receiving", apiPrefix, orderID),
		tenantID: tenantID,
	}, &dto)
	if isNotFound(err) {
		return nil, receiving.NewOrderNotFoundError(fmt.Sprintf("Order %s was not found", orderID), err)
	}
	if err != nil {
		return nil, transportError("Could not load order detail", err)
	}
	return dto.toDomain(), nil
}

var _ appreceiving.OrderCatalog = (*Client)(nil)
