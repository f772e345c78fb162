// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package statestore provides a concurrency-safe, observable key-to-state
// map shared between the orchestrator and any number of UI observers.
//
// The store is the single shared-mutable-state surface in the core. It is
// written by exactly one writer per key (the orchestrator) and read by any
// number of subscribers. Listeners are notified synchronously, in
// subscription order, on every Set.
package statestore

import (
	"sync"
)

// =============================================================================
// KEYED STATE STORE
// =============================================================================

// Listener receives the new value after a Set on the subscribed key.
type Listener[V any] func(value V)

// Store is an observable map from keys to state records.
//
// Thread-safety: all operations are mutex-protected. Listeners run while
// holding no store lock, so a listener may call back into the store.
type Store[K comparable, V any] struct {
	mu     sync.Mutex
	values map[K]V
	subs   map[K][]*subscription[V]
	nextID uint64
}

type subscription[V any] struct {
	id uint64
	fn Listener[V]
}

// New creates an empty store.
func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{
		values: make(map[K]V),
		subs:   make(map[K][]*subscription[V]),
	}
}

// Get returns the current value for key and whether one is set.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set replaces the value for key and notifies all subscribers of that key
// synchronously, in subscription order.
func (s *Store[K, V]) Set(key K, value V) {
	s.mu.Lock()
	s.values[key] = value
	listeners := make([]Listener[V], 0, len(s.subs[key]))
	for _, sub := range s.subs[key] {
		listeners = append(listeners, sub.fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(value)
	}
}

// Delete removes the value for key. Subscribers are not notified; a deleted
// key simply has no value until the next Set.
func (s *Store[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Rekey moves the value and all subscriptions from oldKey to newKey and
// notifies the moved subscribers with the current value. Used when a
// sentinel "new room" key is replaced by the real room ID after creation.
func (s *Store[K, V]) Rekey(oldKey, newKey K) {
	s.mu.Lock()
	value, hasValue := s.values[oldKey]
	if hasValue {
		delete(s.values, oldKey)
		s.values[newKey] = value
	}
	moved := s.subs[oldKey]
	delete(s.subs, oldKey)
	s.subs[newKey] = append(s.subs[newKey], moved...)
	listeners := make([]Listener[V], 0, len(moved))
	for _, sub := range moved {
		listeners = append(listeners, sub.fn)
	}
	s.mu.Unlock()

	if hasValue {
		for _, fn := range listeners {
			fn(value)
		}
	}
}

// Subscribe registers a listener for key and returns an unsubscribe
// function. Unsubscribing is idempotent and safe from inside a listener.
func (s *Store[K, V]) Subscribe(key K, fn Listener[V]) func() {
	s.mu.Lock()
	s.nextID++
	sub := &subscription[V]{id: s.nextID, fn: fn}
	s.subs[key] = append(s.subs[key], sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.unsubscribe(key, sub.id)
		})
	}
}

func (s *Store[K, V]) unsubscribe(key K, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[key]
	for i, sub := range subs {
		if sub.id == id {
			s.subs[key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(s.subs[key]) == 0 {
		delete(s.subs, key)
	}
}

// SubscriberCount returns the number of listeners registered for key.
func (s *Store[K, V]) SubscriberCount(key K) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[key])
}

// Keys returns all keys that currently hold a value.
func (s *Store[K, V]) Keys() []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]K, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}
