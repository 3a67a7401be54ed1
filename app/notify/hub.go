package notify

import (
	"sync"
	"time"
)

const EventFeedsSynced = "FEEDS_SYNCED"

type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func FeedsSynced(at time.Time) Event {
	return Event{Type: EventFeedsSynced, Timestamp: at}
}

type Broadcaster interface {
	Broadcast(event Event) int
}

// Hub fans events out to every live listener. Delivery is best effort: a
// listener whose buffer is full misses the event.
type Hub struct {
	mu        sync.Mutex
	listeners map[int]chan Event
	nextID    int
	buffer    int
	closed    bool
}

var _ Broadcaster = (*Hub)(nil)

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		listeners: make(map[int]chan Event),
		buffer:    buffer,
	}
}

// Subscribe registers a listener. The returned cancel func unregisters it and
// closes the channel; calling it more than once is safe.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.listeners[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.listeners[id]; ok {
			delete(h.listeners, id)
			close(ch)
		}
	}

	return ch, cancel
}

// Broadcast sends event to every listener without blocking and returns how
// many received it.
func (h *Hub) Broadcast(event Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for _, ch := range h.listeners {
		select {
		case ch <- event:
			delivered++
		default:
		}
	}
	return delivered
}

// Close ends every subscription. Listeners subscribing afterwards get a
// closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, ch := range h.listeners {
		delete(h.listeners, id)
		close(ch)
	}
}

func (h *Hub) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
