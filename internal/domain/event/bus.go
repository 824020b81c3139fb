package event

import "sync"

// Publisher publishes domain events. The engine publishes after a transition
// commits; it never waits on delivery.
type Publisher interface {
	Publish(e *Event)
}

// Handler consumes published events
type Handler func(e *Event)

// Bus is a simple in-process publisher with fan-out to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all future events
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers the event to every subscribed handler synchronously, in
// subscription order
func (b *Bus) Publish(e *Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// NopPublisher discards all events
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(*Event) {}
