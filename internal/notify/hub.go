package notify

import (
	"context"
	"sync"

	"github.com/pagegraph/pagegraph/internal/log"
)

// subscriberBuffer bounds each subscriber channel. A subscriber that
// falls this far behind starts losing messages.
const subscriberBuffer = 64

// Hub fans messages out to live subscribers. Sends are non-blocking per
// subscriber: a full channel drops the message for that subscriber only.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uint64]chan Message
	nextID      uint64
	dropped     uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[uint64]chan Message)}
}

// Subscribe registers a subscriber and returns its channel together with
// a cancel function. The channel is closed on cancel.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan Message, subscriberBuffer)
	h.subscribers[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if ch, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(ch)
		}
	}

	return ch, cancel
}

// Publish delivers the message to every subscriber that can take it.
func (h *Hub) Publish(ctx context.Context, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
			h.dropped++
			log.Warn(ctx, "dropping message for slow subscriber",
				log.Uint64("subscriber", id),
				log.String("entity", msg.EntityID),
			)
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subscribers)
}

// Dropped returns the total number of messages dropped for slow
// subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.dropped
}
