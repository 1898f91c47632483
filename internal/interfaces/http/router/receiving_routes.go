package router

import (
	"github.com/erp/receiving/internal/interfaces/http/handler"
	"github.com/erp/receiving/internal/interfaces/http/middleware"
)

// ReceivingRoutes groups the intake session API under /receiving. Every
// route requires the X-Tenant-ID and X-Device-ID headers.
func ReceivingRoutes(h *handler.ReceivingHandler, events *handler.SessionEventsHandler) *DomainGroup {
	g := NewDomainGroup("receiving", "/receiving").Use(middleware.SessionContext())

	g.GET("/orders", h.ListOrders).
		GET("/orders/:id/receipts", h.ListReceipts)

	session := g.Group("session", "/session")
	session.GET("", h.GetSession).
		DELETE("", h.EndSession).
		POST("/order", h.SelectOrder).
		POST("/error/ack", h.AcknowledgeError).
		POST("/scan", h.Scan).
		POST("/confirm", h.ConfirmQuantity).
		POST("/confirm/cancel", h.CancelConfirmation).
		POST("/manual", h.OpenManualEntry).
		GET("/manual/lines", h.SearchLines).
		POST("/manual/select", h.SelectLine).
		POST("/manual/close", h.CloseManualEntry).
		POST("/summary", h.OpenSummary).
		POST("/summary/close", h.CloseSummary).
		DELETE("/queue/:lineId", h.RemoveEntry).
		POST("/finalize", h.Finalize).
		POST("/cancel", h.Cancel)

	if events != nil {
		session.GET("/events", events.Stream)
	}
	return g
}
