// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pubsub provides typed events and a small fan-out broker.
package pubsub

import (
	"sync"
)

// EventType represents the type of event.
type EventType int

const (
	// CreatedEvent indicates a new item was created.
	CreatedEvent EventType = iota
	// UpdatedEvent indicates an existing item was updated.
	UpdatedEvent
	// DeletedEvent indicates an item was deleted.
	DeletedEvent
	// SelectedEvent indicates the selection state of an item changed.
	SelectedEvent
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case CreatedEvent:
		return "created"
	case UpdatedEvent:
		return "updated"
	case DeletedEvent:
		return "deleted"
	case SelectedEvent:
		return "selected"
	default:
		return "unknown"
	}
}

// Event wraps an event with type information.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// NewCreatedEvent creates a new "created" event.
func NewCreatedEvent[T any](payload T) Event[T] {
	return Event[T]{Type: CreatedEvent, Payload: payload}
}

// NewUpdatedEvent creates a new "updated" event.
func NewUpdatedEvent[T any](payload T) Event[T] {
	return Event[T]{Type: UpdatedEvent, Payload: payload}
}

// NewDeletedEvent creates a new "deleted" event.
func NewDeletedEvent[T any](payload T) Event[T] {
	return Event[T]{Type: DeletedEvent, Payload: payload}
}

// NewSelectedEvent creates a new "selected" event.
func NewSelectedEvent[T any](payload T) Event[T] {
	return Event[T]{Type: SelectedEvent, Payload: payload}
}

const defaultBufferSize = 64

// Broker fans published events out to every live subscriber. Delivery is
// in publish order per subscriber. A subscriber whose buffer is full loses
// the event; Dropped reports how many were lost overall.
type Broker[T any] struct {
	mu      sync.RWMutex
	subs    map[int]chan Event[T]
	nextID  int
	bufSize int
	closed  bool
	dropped int
}

// NewBroker creates a broker whose subscriber channels hold bufSize events.
// A non-positive bufSize selects the default.
func NewBroker[T any](bufSize int) *Broker[T] {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return &Broker[T]{
		subs:    make(map[int]chan Event[T]),
		bufSize: bufSize,
	}
}

// Subscribe registers a subscriber. The returned cancel func is idempotent
// and closes the channel. Subscribing to a closed broker yields a closed
// channel.
func (b *Broker[T]) Subscribe() (<-chan Event[T], func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event[T], b.bufSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Broker[T]) Publish(ev Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
		}
	}
}

// Subscribers returns the number of live subscribers.
func (b *Broker[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the number of events lost to full subscriber buffers.
func (b *Broker[T]) Dropped() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Close closes every subscriber channel. Further publishes are ignored.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
