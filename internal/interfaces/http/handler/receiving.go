package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	appreceiving "github.com/erp/receiving/internal/application/receiving"
	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/erp/receiving/internal/domain/shared"
	"github.com/erp/receiving/internal/interfaces/http/dto"
	"github.com/erp/receiving/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReceivingHandler exposes one intake session per (tenant, device) over HTTP.
// Every route runs behind middleware.SessionContext.
type ReceivingHandler struct {
	BaseHandler
	sessions *appreceiving.SessionRegistry
	journal  receiving.ReceiptJournal
}

// NewReceivingHandler creates a ReceivingHandler. journal may be nil, in
// which case the receipts route answers 404.
func NewReceivingHandler(sessions *appreceiving.SessionRegistry, journal receiving.ReceiptJournal) *ReceivingHandler {
	return &ReceivingHandler{sessions: sessions, journal: journal}
}

// controller returns the caller's session, creating it on first use
func (h *ReceivingHandler) controller(c *gin.Context) (*appreceiving.Controller, bool) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeSessionRequired, err.Error())
		return nil, false
	}
	return h.sessions.Get(c.Request.Context(), tenantID, middleware.GetDeviceID(c)), true
}

// command is a controller method taking no arguments beyond the context
type command func(*appreceiving.Controller, context.Context) (appreceiving.Outcome, error)

// run executes one controller command and writes its outcome
func (h *ReceivingHandler) run(c *gin.Context, fn command) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	out, err := fn(ctrl, c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, out)
}

// ListOrders returns the tenant's orders awaiting receipt
// GET /orders
func (h *ReceivingHandler) ListOrders(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	orders, err := ctrl.ListOrders(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, orders)
}

// GetSession returns the session view
// GET /session
func (h *ReceivingHandler) GetSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	h.Success(c, ctrl.View())
}

// EndSession stops the caller's session and discards its queue
// DELETE /session
func (h *ReceivingHandler) EndSession(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeSessionRequired, err.Error())
		return
	}
	closed := h.sessions.Remove(c.Request.Context(), tenantID, middleware.GetDeviceID(c))
	h.Success(c, gin.H{"closed": closed})
}

// SelectOrder POST /session/order
func (h *ReceivingHandler) SelectOrder(c *gin.Context) {
	var req dto.SelectOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	orderID := uuid.MustParse(req.OrderID)
	h.run(c, func(ctrl *appreceiving.Controller, ctx context.Context) (appreceiving.Outcome, error) {
		return ctrl.SelectOrder(ctx, orderID)
	})
}

// AcknowledgeError POST /session/error/ack
func (h *ReceivingHandler) AcknowledgeError(c *gin.Context) {
	h.run(c, (*appreceiving.Controller).AcknowledgeError)
}

// Scan POST /session/scan
func (h *ReceivingHandler) Scan(c *gin.Context) {
	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	h.run(c, func(ctrl *appreceiving.Controller, ctx context.Context) (appreceiving.Outcome, error) {
		return ctrl.Scan(ctx, req.Barcode)
	})
}

// ConfirmQuantity POST /session/confirm
func (h *ReceivingHandler) ConfirmQuantity(c *gin.Context) {
	var req dto.ConfirmQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	h.run(c, func(ctrl *appreceiving.Controller, ctx context.Context) (appreceiving.Outcome, error) {
		return ctrl.ConfirmQuantity(ctx, *req.Quantity)
	})
}

// CancelConfirmation POST /session/confirm/cancel
func (h *ReceivingHandler) CancelConfirmation(c *gin.Context) {
	h.run(c, (*appreceiving.Controller).CancelConfirmation)
}

// OpenManualEntry POST /session/manual
func (h *ReceivingHandler) OpenManualEntry(c *gin.Context) {
	h.run(c, (*appreceiving.Controller).OpenManualEntry)
}

// SearchLines GET /session/manual/lines?q=
func (h *ReceivingHandler) SearchLines(c *gin.Context) {
	var req dto.SearchLinesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	lines, err := ctrl.SearchLines(c.Request.Context(), req.Query)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, lines)
}

// SelectLine POST /session/manual/select
func (h *ReceivingHandler) SelectLine(c *gin.Context) {
	var req dto.SelectLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	lineID := uuid.MustParse(req.OrderLineID)
	h.run(c, func(ctrl *appreceiving.Controller, ctx context.Context) (appreceiving.Outcome, error) {
		return ctrl.SelectLine(ctx, lineID)
	})
}

// CloseManualEntry POST /session/manual/close
func (h *ReceivingHandler) CloseManualEntry(c *gin.Context) {
	h.run(c, (*appreceiving.Controller).CloseManualEntry)
}

// OpenSummary POST /session/summary
func (h *ReceivingHandler) OpenSummary(c *gin.Context) {
	h.run(c, (*appreceiving.Controller).OpenSummary)
}

// CloseSummary POST /session/summary/close
func (h *ReceivingHandler) CloseSummary(c *gin.Context) {
	h.run(c, (*appreceiving.Controller).CloseSummary)
}

// RemoveEntry DELETE /session/queue/:lineId
func (h *ReceivingHandler) RemoveEntry(c *gin.Context) {
	lineID, err := uuid.Parse(c.Param("lineId"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationFormat, "lineId must be a UUID")
		return
	}
	h.run(c, func(ctrl *appreceiving.Controller, ctx context.Context) (appreceiving.Outcome, error) {
		return ctrl.RemoveEntry(ctx, lineID)
	})
}

// Finalize POST /session/finalize. An empty body finalizes with defaults.
func (h *ReceivingHandler) Finalize(c *gin.Context) {
	var req dto.FinalizeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindingError(c, err)
			return
		}
	}
	opts, details := finalizeOptions(req)
	if len(details) > 0 {
		c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
			"Request validation failed", middleware.GetRequestID(c), details))
		return
	}
	h.run(c, func(ctrl *appreceiving.Controller, ctx context.Context) (appreceiving.Outcome, error) {
		return ctrl.Finalize(ctx, opts)
	})
}

func finalizeOptions(req dto.FinalizeRequest) (appreceiving.FinalizeOptions, []dto.ValidationDetail) {
	opts := appreceiving.FinalizeOptions{Notes: req.Notes}
	var details []dto.ValidationDetail

	if req.ReceivingDate != "" {
		date, err := time.ParseInLocation(time.DateOnly, req.ReceivingDate, time.Local)
		if err != nil {
			details = append(details, dto.ValidationDetail{Field: "receiving_date", Message: "must be a date formatted 2006-01-02"})
		} else {
			opts.ReceivingDate = &date
		}
	}
	if len(req.LineNotes) > 0 {
		opts.LineNotes = make(map[uuid.UUID]string, len(req.LineNotes))
		for key, note := range req.LineNotes {
			lineID, err := uuid.Parse(key)
			if err != nil {
				details = append(details, dto.ValidationDetail{
					Field:   fmt.Sprintf("line_notes[%s]", key),
					Message: "key must be an order line UUID",
				})
				continue
			}
			opts.LineNotes[lineID] = note
		}
	}
	return opts, details
}

// Cancel POST /session/cancel
func (h *ReceivingHandler) Cancel(c *gin.Context) {
	h.run(c, (*appreceiving.Controller).Cancel)
}

// ListReceipts returns the journal of finalize attempts for an order, newest first
// GET /orders/:id/receipts
func (h *ReceivingHandler) ListReceipts(c *gin.Context) {
	if h.journal == nil {
		h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, "Receipt journal is not enabled")
		return
	}
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeSessionRequired, err.Error())
		return
	}
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationFormat, "id must be a UUID")
		return
	}
	var page dto.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		h.BindingError(c, err)
		return
	}

	filter := shared.Filter{Page: page.Page, PageSize: page.PageSize}.Normalize()
	result, err := h.journal.ListByOrder(c.Request.Context(), tenantID, orderID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}
