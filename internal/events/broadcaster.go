// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package events

import (
	"log/slog"
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 64

// Broadcaster distributes events to subscribers by event type.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[Type][]chan Event
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[Type][]chan Event),
	}
}

// Subscribe creates a channel receiving events of the given type.
func (b *Broadcaster) Subscribe(eventType Type) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	b.subs[eventType] = append(b.subs[eventType], ch)
	return ch
}

// Unsubscribe removes a channel and closes it.
func (b *Broadcaster) Unsubscribe(eventType Type, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[eventType]
	for i, sub := range subs {
		if sub == ch {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Broadcast sends an event to all subscribers of its type. Delivery is
// best-effort: a subscriber with a full buffer misses the event.
func (b *Broadcaster) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[event.Type] {
		select {
		case ch <- event:
		default:
			slog.Warn("event dropped: subscriber buffer full",
				"event_id", event.ID.String(),
				"event_type", string(event.Type),
			)
		}
	}
}
