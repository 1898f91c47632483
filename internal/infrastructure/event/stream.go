package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/erp/receiving/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stream is a wildcard handler that fans events out to channel subscribers,
// one per open event stream. Sends never block: a subscriber whose buffer
// is full misses the event.
type Stream struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  uint64
	buffer  int
	logger  *zap.Logger
	dropped atomic.Uint64
}

type subscription struct {
	aggregateID uuid.UUID
	ch          chan shared.DomainEvent
}

// NewStream creates a stream whose subscriber channels hold buffer events
func NewStream(buffer int, logger *zap.Logger) *Stream {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		subs:   make(map[uint64]*subscription),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe returns a channel receiving events of the given aggregate
// (uuid.Nil for all). cancel closes the channel.
func (s *Stream) Subscribe(aggregateID uuid.UUID) (<-chan shared.DomainEvent, func()) {
	sub := &subscription{aggregateID: aggregateID, ch: make(chan shared.DomainEvent, s.buffer)}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Handle implements shared.EventHandler
func (s *Stream) Handle(_ context.Context, event shared.DomainEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.aggregateID != uuid.Nil && sub.aggregateID != event.AggregateID() {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			s.dropped.Add(1)
			s.logger.Warn("event stream subscriber is full, dropping event",
				zap.String("event_type", event.EventType()),
				zap.String("aggregate_id", event.AggregateID().String()),
			)
		}
	}
	return nil
}

// EventTypes implements shared.EventHandler; the stream receives every event
func (s *Stream) EventTypes() []string {
	return nil
}

// Dropped returns how many deliveries were skipped because a subscriber was full
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Subscribers returns the number of open subscriptions
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

var _ shared.EventHandler = (*Stream)(nil)
