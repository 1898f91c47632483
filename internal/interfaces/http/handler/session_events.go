package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	appreceiving "github.com/erp/receiving/internal/application/receiving"
	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/erp/receiving/internal/domain/shared"
	"github.com/erp/receiving/internal/infrastructure/logger"
	"github.com/erp/receiving/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventSource delivers the domain events raised by one aggregate
type EventSource interface {
	Subscribe(aggregateID uuid.UUID) (<-chan shared.DomainEvent, func())
}

// SSEMessage is one server-sent event
type SSEMessage struct {
	Event string
	ID    string
	Data  string
}

const queueSnapshotBuffer = 16

// SessionEventsHandler streams a session's queue snapshots and domain
// events to the device over Server-Sent Events
type SessionEventsHandler struct {
	BaseHandler
	sessions  *appreceiving.SessionRegistry
	source    EventSource
	heartbeat time.Duration
}

// NewSessionEventsHandler creates a SessionEventsHandler. A non-positive
// heartbeat defaults to 15s.
func NewSessionEventsHandler(sessions *appreceiving.SessionRegistry, source EventSource, heartbeat time.Duration) *SessionEventsHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &SessionEventsHandler{sessions: sessions, source: source, heartbeat: heartbeat}
}

// Stream GET /session/events
//
// Events: "connected" (session view), "queue" (queue snapshot after each
// change), one event per domain event named by its type, "heartbeat", and
// "closed" when the session ends.
func (h *SessionEventsHandler) Stream(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	ctrl := h.sessions.Get(c.Request.Context(), tenantID, middleware.GetDeviceID(c))
	log := logger.GetGinLogger(c).With(zap.String("session_id", ctrl.SessionID().String()))

	events, cancelEvents := h.source.Subscribe(ctrl.SessionID())
	defer cancelEvents()

	snapshots := make(chan receiving.QueueSnapshot, queueSnapshotBuffer)
	unsubscribe := ctrl.Subscribe(func(s receiving.QueueSnapshot) {
		select {
		case snapshots <- s:
		default:
			log.Debug("Queue snapshot dropped for slow SSE client")
		}
	})
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	log.Info("SSE client connected")
	h.send(c, log, "connected", "", ctrl.View())

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	reqCtx := c.Request.Context()
	for {
		select {
		case <-reqCtx.Done():
			log.Info("SSE client disconnected")
			return
		case <-ctrl.Done():
			h.send(c, log, "closed", "", gin.H{"session_id": ctrl.SessionID()})
			return
		case snapshot := <-snapshots:
			h.send(c, log, "queue", "", snapshot)
		case event, ok := <-events:
			if !ok {
				return
			}
			h.send(c, log, event.EventType(), event.EventID().String(), event)
		case now := <-ticker.C:
			h.send(c, log, "heartbeat", "", gin.H{"timestamp": now.Unix()})
		}
	}
}

func (h *SessionEventsHandler) send(c *gin.Context, log *zap.Logger, event, id string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("Failed to marshal SSE event", zap.String("event", event), zap.Error(err))
		return
	}
	writeSSE(c.Writer, SSEMessage{Event: event, ID: id, Data: string(data)})
	c.Writer.Flush()
}

// writeSSE writes msg in text/event-stream framing
func writeSSE(w io.Writer, msg SSEMessage) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.ID != "" {
		fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}
