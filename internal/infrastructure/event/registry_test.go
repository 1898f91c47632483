package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerRegistry_Register(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newTestHandler()

	registry.Register(handler, "ReceivingItemQueued", "ReceivingItemRemoved")

	assert.Equal(t, 1, len(registry.GetHandlers("ReceivingItemQueued")))
	assert.Equal(t, 1, len(registry.GetHandlers("ReceivingItemRemoved")))
	assert.Empty(t, registry.GetHandlers("ReceiptFinalized"))
	assert.Equal(t, 1, registry.Len())
}

func TestHandlerRegistry_RegisterTwiceIsNoop(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newTestHandler()

	registry.Register(handler, "ReceiptFinalized")
	registry.Register(handler, "ReceiptFinalized")
	registry.Register(handler)
	registry.Register(handler)

	assert.Len(t, registry.GetHandlers("ReceiptFinalized"), 2)
	assert.Len(t, registry.GetHandlers("ReceivingItemQueued"), 1)
}

func TestHandlerRegistry_WildcardAfterTyped(t *testing.T) {
	registry := NewHandlerRegistry()
	typed := newTestHandler()
	wildcard := newTestHandler()

	registry.Register(wildcard)
	registry.Register(typed, "ReceiptFinalized")

	handlers := registry.GetHandlers("ReceiptFinalized")
	assert.Len(t, handlers, 2)
	assert.Same(t, typed, handlers[0])
	assert.Same(t, wildcard, handlers[1])
}

func TestHandlerRegistry_Unregister(t *testing.T) {
	registry := NewHandlerRegistry()
	a := newTestHandler()
	b := newTestHandler()

	registry.Register(a, "ReceiptFinalized", "ReceivingItemQueued")
	registry.Register(b, "ReceiptFinalized")
	registry.Register(a)

	registry.Unregister(a)

	handlers := registry.GetHandlers("ReceiptFinalized")
	assert.Len(t, handlers, 1)
	assert.Same(t, b, handlers[0])
	assert.Empty(t, registry.GetHandlers("ReceivingItemQueued"))
	assert.Equal(t, 1, registry.Len())
}
