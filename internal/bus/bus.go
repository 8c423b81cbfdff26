// Package bus provides a small in-process publish/subscribe bus that
// decouples the domain packages from the display layer. Card lifecycle,
// correction progress, connection status, and settings changes all flow
// through it as topic-addressed payloads.
package bus

import (
	"log/slog"
	"slices"
	"sync"
)

// Bus dispatches payloads to topic subscribers. Publish is synchronous:
// handlers run on the publishing goroutine, in subscription order. A
// panicking handler is logged and skipped; it never takes down the
// publisher.
//
// All methods are safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]func(payload any)
}

// New returns an empty, ready-to-use [Bus].
func New() *Bus {
	return &Bus{
		handlers: make(map[string]map[int]func(payload any)),
	}
}

// Subscribe registers fn for topic and returns a function that removes the
// subscription. Unsubscribing twice is harmless.
func (b *Bus) Subscribe(topic string, fn func(payload any)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[int]func(payload any))
	}
	b.handlers[topic][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers[topic], id)
		b.mu.Unlock()
	}
}

// Publish delivers payload to every subscriber of topic.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.handlers[topic]))
	for id := range b.handlers[topic] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]func(any), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, b.handlers[topic][id])
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		b.dispatch(topic, fn, payload)
	}
}

func (b *Bus) dispatch(topic string, fn func(any), payload any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bus: handler panic", "topic", topic, "panic", r)
		}
	}()
	fn(payload)
}
