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

// Package csync provides concurrent data structures.
package csync

import (
	"iter"
	"sync"
)

// Map is a concurrent-safe map. Values are stored and returned as-is, so
// callers that need "replace wholesale" semantics should store immutable
// values or pointers they never mutate after Set.
type Map[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// NewMap creates a new concurrent map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		data: make(map[K]V),
	}
}

// Get retrieves a value from the map.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Set stores a value in the map.
func (m *Map[K, V]) Set(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// GetOrSet returns the existing value for key, or stores and returns the
// value produced by create. create runs under the write lock and must not
// touch the map.
func (m *Map[K, V]) GetOrSet(key K, create func() V) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, true
	}
	v := create()
	m.data[key] = v
	return v, false
}

// Delete removes a value from the map.
func (m *Map[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

// Take removes key and returns the value it held.
func (m *Map[K, V]) Take(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if ok {
		delete(m.data, key)
	}
	return v, ok
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Keys returns a snapshot of the keys in unspecified order.
func (m *Map[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]K, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

// Seq2 returns an iterator over key-value pairs. The read lock is held for
// the whole iteration, so the loop body must not write to the map.
func (m *Map[K, V]) Seq2() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for k, v := range m.data {
			if !yield(k, v) {
				return
			}
		}
	}
}

// Values returns an iterator over values only.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for _, v := range m.data {
			if !yield(v) {
				return
			}
		}
	}
}

// Drain empties the map and returns what it held.
func (m *Map[K, V]) Drain() map[K]V {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.data
	m.data = make(map[K]V)
	return out
}

// Set is a concurrent-safe set of comparable items.
type Set[T comparable] struct {
	m *Map[T, struct{}]
}

// NewSet creates an empty set.
func NewSet[T comparable]() *Set[T] {
	return &Set[T]{m: NewMap[T, struct{}]()}
}

// Add inserts item.
func (s *Set[T]) Add(item T) { s.m.Set(item, struct{}{}) }

// Remove deletes item.
func (s *Set[T]) Remove(item T) { s.m.Delete(item) }

// Has reports whether item is present.
func (s *Set[T]) Has(item T) bool {
	_, ok := s.m.Get(item)
	return ok
}

// Len returns the number of items.
func (s *Set[T]) Len() int { return s.m.Len() }

// Items returns a snapshot of the items in unspecified order.
func (s *Set[T]) Items() []T { return s.m.Keys() }
