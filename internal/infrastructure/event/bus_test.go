package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erp/receiving/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testEvent implements DomainEvent for testing
type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string, aggregateID uuid.UUID) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "ReceivingSession", aggregateID, uuid.New()),
	}
}

// testHandler records the events it receives
type testHandler struct {
	eventTypes []string
	err        error
	panics     bool

	mu      sync.Mutex
	handled []shared.DomainEvent
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	h.handled = append(h.handled, event)
	h.mu.Unlock()
	if h.panics {
		panic("handler exploded")
	}
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestInMemoryEventBus_DeliversByType(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	queued := newTestHandler("ReceivingItemQueued")
	finalized := newTestHandler("ReceiptFinalized")
	bus.Subscribe(queued)
	bus.Subscribe(finalized)

	sessionID := uuid.New()
	err := bus.Publish(context.Background(),
		newTestEvent("ReceivingItemQueued", sessionID),
		newTestEvent("ReceivingItemQueued", sessionID),
		newTestEvent("ReceiptFinalized", sessionID),
	)
	require.NoError(t, err)

	assert.Equal(t, 2, queued.count())
	assert.Equal(t, 1, finalized.count())
}

func TestInMemoryEventBus_ExplicitTypesOverrideHandlerTypes(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler("ReceivingItemQueued")
	bus.Subscribe(handler, "ReceivingStateChanged")

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("ReceivingItemQueued", uuid.New())))
	assert.Equal(t, 0, handler.count())

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("ReceivingStateChanged", uuid.New())))
	assert.Equal(t, 1, handler.count())
}

func TestInMemoryEventBus_Wildcard(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	all := newTestHandler()
	bus.Subscribe(all)

	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent("ReceivingScanRejected", uuid.New()),
		newTestEvent("ReceiptFinalized", uuid.New()),
	))
	assert.Equal(t, 2, all.count())
}

func TestInMemoryEventBus_FailingHandlersDoNotStopDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	failing := newTestHandler("ReceiptFinalized")
	failing.err = errors.New("cache unavailable")
	panicking := newTestHandler("ReceiptFinalized")
	panicking.panics = true
	healthy := newTestHandler("ReceiptFinalized")

	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("ReceiptFinalized", uuid.New()))
	require.NoError(t, err)

	assert.Equal(t, 1, healthy.count())
	delivered, failed := bus.Stats()
	assert.Equal(t, int64(1), delivered)
	assert.Equal(t, int64(2), failed)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler("ReceivingItemQueued")
	bus.Subscribe(handler)
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("ReceivingItemQueued", uuid.New())))

	bus.Unsubscribe(handler)
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("ReceivingItemQueued", uuid.New())))

	assert.Equal(t, 1, handler.count())
}

func TestInMemoryEventBus_StopRejectsPublish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, bus.Stop(ctx))
	assert.Error(t, bus.Publish(ctx, newTestEvent("ReceivingItemQueued", uuid.New())))

	require.NoError(t, bus.Start(ctx))
	assert.NoError(t, bus.Publish(ctx, newTestEvent("ReceivingItemQueued", uuid.New())))
}
