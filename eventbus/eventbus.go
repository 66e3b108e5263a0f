// Package eventbus is the reference host's stand-in for the message-bus
// producer spec.md §1 lists as an external collaborator ("event delivery to
// a message bus"). The saga's "emit audit event" step action publishes
// through the Publisher interface; a real deployment backs it with a Kafka
// or similar producer, not reimplemented here.
package eventbus

import (
	"context"
	"fmt"
	"sync"
)

// Event is a single audit event produced by the saga.
type Event struct {
	Topic   string
	Payload []byte
}

// Publisher delivers events to a message bus. The saga treats it as an
// opaque effectful collaborator: a publish failure is an ordinary step
// failure subject to the same retry/compensation machinery as any other
// step.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// InMemoryBus is a Publisher that retains every published event in process
// memory, useful for the demo CLI and for tests asserting on what the saga
// published.
type InMemoryBus struct {
	mu     sync.Mutex
	events map[string][]Event
}

// NewInMemoryBus creates an empty bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{events: make(map[string][]Event)}
}

// Publish appends event to its topic's log.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("eventbus: publish canceled: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.Topic] = append(b.events[event.Topic], event)
	return nil
}

// Events returns a copy of everything published to topic, in publish order.
func (b *InMemoryBus) Events(topic string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events[topic]))
	copy(out, b.events[topic])
	return out
}
