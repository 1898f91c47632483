package receiving

import (
	"sync"

	"github.com/erp/receiving/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QueueEntry is one order line waiting to be received.
// UnitCost is captured when the line is first added and never changes.
type QueueEntry struct {
	OrderLineID uuid.UUID       `json:"order_line_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	Barcode     string          `json:"barcode,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// Value returns quantity * unit cost
func (e QueueEntry) Value() decimal.Decimal {
	return e.Quantity.Mul(e.UnitCost)
}

// QueueSnapshot is an immutable copy of the queue handed to subscribers
type QueueSnapshot struct {
	OrderID       uuid.UUID       `json:"order_id"`
	Entries       []QueueEntry    `json:"entries"`
	ItemCount     int             `json:"item_count"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	TotalValue    decimal.Decimal `json:"total_value"`
	Version       uint64          `json:"version"`
}

// QueueListener receives a snapshot after every mutating queue operation
type QueueListener func(QueueSnapshot)

// ReceivingQueue accumulates quantities to receive for one order, keyed by
// order line ID. The same product may appear on two lines, so entries are
// never keyed by product or barcode.
type ReceivingQueue struct {
	mu      sync.Mutex
	orderID uuid.UUID
	entries []QueueEntry
	index   map[uuid.UUID]int
	version uint64

	listenerMu     sync.RWMutex
	listeners      map[uint64]QueueListener
	nextListenerID uint64
}

// NewReceivingQueue creates an empty queue bound to the given order
func NewReceivingQueue(orderID uuid.UUID) *ReceivingQueue {
	return &ReceivingQueue{
		orderID:   orderID,
		entries:   make([]QueueEntry, 0),
		index:     make(map[uuid.UUID]int),
		listeners: make(map[uint64]QueueListener),
	}
}

// OrderID returns the order the queue is bound to
func (q *ReceivingQueue) OrderID() uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.orderID
}

// Add merges entry into the queue. An existing entry for the same order line
// has its quantity incremented and keeps its position and unit cost;
// otherwise the entry is appended. Returns the resulting entry.
func (q *ReceivingQueue) Add(entry QueueEntry) (QueueEntry, error) {
	if entry.OrderLineID == uuid.Nil {
		return QueueEntry{}, shared.NewDomainError(CodeInvalidEntry, "Queue entry must reference an order line")
	}
	if !entry.Quantity.IsPositive() {
		return QueueEntry{}, shared.NewDomainError(CodeInvalidQuantity, "Quantity to receive must be positive")
	}

	q.mu.Lock()
	var result QueueEntry
	if idx, ok := q.index[entry.OrderLineID]; ok {
		q.entries[idx].Quantity = q.entries[idx].Quantity.Add(entry.Quantity)
		result = q.entries[idx]
	} else {
		q.index[entry.OrderLineID] = len(q.entries)
		q.entries = append(q.entries, entry)
		result = entry
	}
	snapshot := q.commitLocked()
	q.mu.Unlock()

	q.notify(snapshot)
	return result, nil
}

// Remove deletes the entry for the order line. Returns false (and does not
// notify) if there was no such entry.
func (q *ReceivingQueue) Remove(orderLineID uuid.UUID) bool {
	q.mu.Lock()
	idx, ok := q.index[orderLineID]
	if !ok {
		q.mu.Unlock()
		return false
	}
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	q.reindexLocked()
	snapshot := q.commitLocked()
	q.mu.Unlock()

	q.notify(snapshot)
	return true
}

// Clear empties the queue
func (q *ReceivingQueue) Clear() {
	q.mu.Lock()
	q.entries = make([]QueueEntry, 0)
	q.index = make(map[uuid.UUID]int)
	snapshot := q.commitLocked()
	q.mu.Unlock()

	q.notify(snapshot)
}

// Reset empties the queue and binds it to another order. Subscribers are kept.
func (q *ReceivingQueue) Reset(orderID uuid.UUID) {
	q.mu.Lock()
	q.orderID = orderID
	q.entries = make([]QueueEntry, 0)
	q.index = make(map[uuid.UUID]int)
	snapshot := q.commitLocked()
	q.mu.Unlock()

	q.notify(snapshot)
}

// TotalValue returns the sum of quantity * unit cost over current entries
func (q *ReceivingQueue) TotalValue() decimal.Decimal {
	q.mu.Lock()
	defer q.mu.Unlock()
	return totalValue(q.entries)
}

// TotalQuantity returns the sum of quantities over current entries
func (q *ReceivingQueue) TotalQuantity() decimal.Decimal {
	q.mu.Lock()
	defer q.mu.Unlock()
	return totalQuantity(q.entries)
}

// ItemCount returns the number of distinct entries, not summed quantities
func (q *ReceivingQueue) ItemCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// IsEmpty returns true if the queue has no entries
func (q *ReceivingQueue) IsEmpty() bool {
	return q.ItemCount() == 0
}

// QuantityFor returns the queued quantity for an order line (zero if absent)
func (q *ReceivingQueue) QuantityFor(orderLineID uuid.UUID) decimal.Decimal {
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx, ok := q.index[orderLineID]; ok {
		return q.entries[idx].Quantity
	}
	return decimal.Zero
}

// Entry returns the entry for an order line
func (q *ReceivingQueue) Entry(orderLineID uuid.UUID) (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx, ok := q.index[orderLineID]; ok {
		return q.entries[idx], true
	}
	return QueueEntry{}, false
}

// Entries returns a copy of the entries in first-added order
func (q *ReceivingQueue) Entries() []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return copyEntries(q.entries)
}

// Snapshot returns the current state of the queue
func (q *ReceivingQueue) Snapshot() QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Subscribe registers a listener called after each mutation.
// The returned function removes the listener.
func (q *ReceivingQueue) Subscribe(listener QueueListener) func() {
	q.listenerMu.Lock()
	id := q.nextListenerID
	q.nextListenerID++
	q.listeners[id] = listener
	q.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			q.listenerMu.Lock()
			delete(q.listeners, id)
			q.listenerMu.Unlock()
		})
	}
}

func (q *ReceivingQueue) commitLocked() QueueSnapshot {
	q.version++
	return q.snapshotLocked()
}

func (q *ReceivingQueue) snapshotLocked() QueueSnapshot {
	return QueueSnapshot{
		OrderID:       q.orderID,
		Entries:       copyEntries(q.entries),
		ItemCount:     len(q.entries),
		TotalQuantity: totalQuantity(q.entries),
		TotalValue:    totalValue(q.entries),
		Version:       q.version,
	}
}

func (q *ReceivingQueue) reindexLocked() {
	q.index = make(map[uuid.UUID]int, len(q.entries))
	for i := range q.entries {
		q.index[q.entries[i].OrderLineID] = i
	}
}

func (q *ReceivingQueue) notify(snapshot QueueSnapshot) {
	q.listenerMu.RLock()
	listeners := make([]QueueListener, 0, len(q.listeners))
	for _, l := range q.listeners {
		listeners = append(listeners, l)
	}
	q.listenerMu.RUnlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func copyEntries(entries []QueueEntry) []QueueEntry {
	out := make([]QueueEntry, len(entries))
	copy(out, entries)
	return out
}

func totalValue(entries []QueueEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Value())
	}
	return total
}

func totalQuantity(entries []QueueEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Quantity)
	}
	return total
}
