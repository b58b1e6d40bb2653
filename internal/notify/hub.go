package notify

import (
	"context"
	"sync"

	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// Hub broadcasts events to in-process subscribers such as SSE streams.
// A subscriber that is not keeping up misses events rather than blocking
// publishers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan Event
	nextID      uint64
	closed      bool
	logger      *zap.Logger
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[uint64]chan Event),
		logger:      util.GetLogger(),
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch, func() {}
	}

	h.nextID++
	id := h.nextID
	h.subscribers[id] = ch
	h.logger.Debug("Subscriber registered", zap.Uint64("subscriber_id", id))

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.unsubscribe(id) })
	}
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
		h.logger.Debug("Subscriber unregistered", zap.Uint64("subscriber_id", id))
	}
}

// Publish implements Sink
func (h *Hub) Publish(ctx context.Context, events ...Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ev := range events {
		for id, ch := range h.subscribers {
			select {
			case ch <- ev:
			default:
				util.NotificationsDroppedTotal.WithLabelValues("slow_subscriber").Inc()
				h.logger.Warn("Dropping event for slow subscriber",
					zap.Uint64("subscriber_id", id),
					zap.String("event", ev.Name))
			}
		}
	}
	return nil
}

// Len returns the number of live subscribers
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
	h.closed = true
}
