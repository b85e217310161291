// Package bus fans server-side events out to in-process subscribers.
// The gateway uses it to stream watcher, detection and approval
// activity to WebSocket clients as it happens.
package bus

import "sync"

// Event is one server-side event pushed to subscribers.
type Event struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Handler receives broadcast events. Handlers run on the broadcaster's
// goroutine and must not block.
type Handler func(Event)

// Bus delivers events to named subscribers. Safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[string]Handler)}
}

// Subscribe registers a handler under an id. Subscribing twice with the
// same id replaces the earlier handler.
func (b *Bus) Subscribe(id string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = h
}

// Unsubscribe removes a subscriber. Unknown ids are a no-op.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Broadcast delivers an event to every current subscriber.
func (b *Bus) Broadcast(event string, data map[string]any) {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	ev := Event{Name: event, Payload: data}
	for _, h := range hs {
		h(ev)
	}
}
