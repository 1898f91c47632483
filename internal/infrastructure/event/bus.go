package event

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/erp/receiving/internal/domain/shared"
	"github.com/erp/receiving/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// InMemoryEventBus delivers session events to subscribed handlers in-process.
// Delivery is synchronous and in publish order; a failing or panicking
// handler is logged and does not stop delivery to the others.
type InMemoryEventBus struct {
	registry  *HandlerRegistry
	logger    *zap.Logger
	running   atomic.Bool
	delivered atomic.Int64
	failed    atomic.Int64
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
	}
	b.running.Store(true)
	return b
}

// Publish dispatches each event to its handlers. It only fails when the bus is stopped.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if !b.running.Load() {
		return fmt.Errorf("event bus is stopped")
	}
	for _, event := range events {
		handlers := b.registry.GetHandlers(event.EventType())
		if len(handlers) == 0 {
			continue
		}
		b.deliver(ctx, event, handlers)
	}
	return nil
}

func (b *InMemoryEventBus) deliver(ctx context.Context, event shared.DomainEvent, handlers []shared.EventHandler) {
	ctx, span := telemetry.StartSpan(ctx, "event.deliver",
		telemetry.WithAttribute("event_type", event.EventType()),
		telemetry.WithAttribute("handlers", len(handlers)),
	)
	defer span.End()

	for _, handler := range handlers {
		if err := b.dispatch(ctx, handler, event); err != nil {
			b.failed.Add(1)
			telemetry.RecordError(span, err)
			b.logger.Error("event handler failed",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
				zap.String("aggregate_id", event.AggregateID().String()),
				zap.Error(err),
			)
			continue
		}
		b.delivered.Add(1)
	}
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}

// Subscribe registers handler for eventTypes, defaulting to handler.EventTypes()
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("event handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes handler from every event type
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start resumes delivery after Stop
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.running.Store(true)
	b.logger.Info("event bus started", zap.Int("handlers", b.registry.Len()))
	return nil
}

// Stop rejects further publishes
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.running.Store(false)
	b.logger.Info("event bus stopped",
		zap.Int64("delivered", b.delivered.Load()),
		zap.Int64("failed", b.failed.Load()),
	)
	return nil
}

// Stats returns the number of successful and failed handler deliveries
func (b *InMemoryEventBus) Stats() (delivered, failed int64) {
	return b.delivered.Load(), b.failed.Load()
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
