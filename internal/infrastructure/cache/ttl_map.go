package cache

import (
	"sync"
	"time"
)

type ttlItem[V any] struct {
	value     V
	expiresAt time.Time // zero means no expiry
}

func (i ttlItem[V]) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// ttlMap is a mutex-guarded map whose entries expire. A janitor goroutine
// sweeps expired entries until close is called.
type ttlMap[K comparable, V any] struct {
	mu    sync.Mutex
	items map[K]ttlItem[V]
	now   func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newTTLMap[K comparable, V any](sweepEvery time.Duration) *ttlMap[K, V] {
	m := &ttlMap[K, V]{
		items: make(map[K]ttlItem[V]),
		now:   time.Now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go m.janitor(sweepEvery)
	return m
}

func (m *ttlMap[K, V]) get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok || item.expired(m.now()) {
		var zero V
		return zero, false
	}
	return item.value, true
}

func (m *ttlMap[K, V]) set(key K, value V, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = m.newItem(value, ttl)
}

// setIfAbsent stores value unless a live entry exists and reports whether it stored
func (m *ttlMap[K, V]) setIfAbsent(key K, value V, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[key]; ok && !item.expired(m.now()) {
		return false
	}
	m.items[key] = m.newItem(value, ttl)
	return true
}

func (m *ttlMap[K, V]) delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

func (m *ttlMap[K, V]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *ttlMap[K, V]) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for key, item := range m.items {
		if item.expired(now) {
			delete(m.items, key)
		}
	}
}

func (m *ttlMap[K, V]) newItem(value V, ttl time.Duration) ttlItem[V] {
	item := ttlItem[V]{value: value}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	return item
}

func (m *ttlMap[K, V]) janitor(every time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *ttlMap[K, V]) close() {
	m.closeOnce.Do(func() {
		close(m.stop)
	})
	<-m.done
}
