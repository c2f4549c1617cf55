package events

import (
	"sync"
	"time"
)

// Type names an asynchronous engine event.
type Type string

const (
	TypeNavigation   Type = "navigation"
	TypeTabCreated   Type = "tab_created"
	TypeTabClosed    Type = "tab_closed"
	TypeNetworkEntry Type = "network_entry"
	TypeError        Type = "error"
)

// Event is one asynchronous notification fanned out to WebSocket
// subscribers and the external sink.
type Event struct {
	Type      Type        `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	URL       string      `json:"url,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Sink forwards events to an external broker. Publish must not block the
// caller for long; implementations own their retry policy.
type Sink interface {
	Publish(event Event) error
}

// Hub broadcasts events to in-process subscribers.
type Hub struct {
	subscribers map[string]chan Event
	sink        Sink
	mu          sync.RWMutex
	closed      bool
}

// NewHub creates an event hub. sink may be nil.
func NewHub(sink Sink) *Hub {
	return &Hub{
		subscribers: make(map[string]chan Event),
		sink:        sink,
	}
}

// Subscribe registers a subscriber under id and returns its channel.
func (h *Hub) Subscribe(id string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, 32)
	h.subscribers[id] = ch
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Emit broadcasts an event to all subscribers and the sink. Slow
// subscribers miss events rather than stalling the emitter.
func (h *Hub) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			// Skip if channel is full
		}
	}

	if h.sink != nil {
		_ = h.sink.Publish(event)
	}
}

// Close closes all subscriptions. Further emits are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
