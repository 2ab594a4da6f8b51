package pubsub

import (
	"sync"
	"sync/atomic"

	"github.com/dnspotify/server/internal/domain"
)

// Hub fans events out to in-process subscribers by topic.
type Hub struct {
	mu     sync.RWMutex
	subs      map[string]map[uint64]chan domain.Event
	nextID    uint64
	observers []func(domain.Event)

	delivered int64
	dropped   int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]chan domain.Event)}
}

// Subscribe registers interest in topic. The returned cancel func
// unregisters and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(topic string, buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan domain.Event, buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[uint64]chan domain.Event)
	}
	h.subs[topic][id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if m, ok := h.subs[topic]; ok {
				delete(m, id)
				if len(m) == 0 {
					delete(h.subs, topic)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Observe registers fn to see every event before any subscriber does. fn
// runs on the delivering goroutine and must not block.
func (h *Hub) Observe(fn func(domain.Event)) {
	h.mu.Lock()
	h.observers = append(h.observers, fn)
	h.mu.Unlock()
}

// Deliver hands ev to every subscriber of its topic. A subscriber whose
// buffer is full misses the event; streams refetch on the next one anyway.
func (h *Hub) Deliver(ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, fn := range h.observers {
		fn(ev)
	}
	for _, ch := range h.subs[ev.Topic] {
		select {
		case ch <- ev:
			atomic.AddInt64(&h.delivered, 1)
		default:
			atomic.AddInt64(&h.dropped, 1)
		}
	}
}

// Subscribers returns the number of subscribers of topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// HubStats holds hub counters.
type HubStats struct {
	Topics    int
	Delivered int64
	Dropped   int64
}

// GetStats returns a snapshot of the hub counters.
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	topics := len(h.subs)
	h.mu.RUnlock()
	return HubStats{
		Topics:    topics,
		Delivered: atomic.LoadInt64(&h.delivered),
		Dropped:   atomic.LoadInt64(&h.dropped),
	}
}
