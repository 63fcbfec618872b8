package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Domain event types emitted by the engine.
const (
	TypePaymentConfirmed = "payment.confirmed"
	TypeRefundRequired   = "payment.refund_required"
	TypeVerdictConflict  = "payment.verdict_conflict"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event Event) error

// Bus provides in-process pub/sub for domain events. Downstream bridges
// (message broker, operator alerts) subscribe here; the engine never waits
// on them.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON marshals payload and publishes it under eventType.
func (b *Bus) PublishJSON(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.Publish(Event{Type: eventType, Payload: data})
	return nil
}
