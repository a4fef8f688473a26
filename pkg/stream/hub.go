package stream

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventReport = "consistency.report"
	EventAlert  = "consistency.alert"
	EventWrite  = "registry.write"
)

type Event struct {
	Type string          `json:"type"`
	At   string          `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEvent(eventType string, data interface{}) Event {
	evt := Event{Type: eventType, At: time.Now().UTC().Format(time.RFC3339Nano)}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			evt.Data = raw
		}
	}
	return evt
}

// Hub fans monitor reports and alerts out to in-process subscribers.
// Publish never blocks: a subscriber whose buffer is full misses the
// event. The websocket layer owns reconnect-and-refetch semantics.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]bool)}
}

// Subscribe registers a new listener with the given buffer depth.
func (h *Hub) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subs[ch] = true
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes the listener and closes its channel. Calling it
// twice with the same channel is safe.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	registered := h.subs[ch]
	delete(h.subs, ch)
	h.mu.Unlock()
	if registered {
		close(ch)
	}
}

// Publish delivers evt to every subscriber with buffer room and reports
// how many received it.
func (h *Hub) Publish(evt Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for ch := range h.subs {
		select {
		case ch <- evt:
			delivered++
		default:
		}
	}
	return delivered
}
