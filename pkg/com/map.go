package com

import (
	"errors"
	"sync"
)

// Map defines a concurrent-safe map structure.
type Map[K comparable, V any] struct {
	m  map[K]V
	mu sync.Mutex
}

var ErrNotFound = errors.New("not found")

func NewMap[K comparable, V any]() Map[K, V] { return Map[K, V]{m: make(map[K]V, 10)} }

func (m *Map[K, _]) Has(key K) bool    { _, err := m.Find(key); return err == nil }
func (m *Map[_, _]) IsEmpty() bool     { m.mu.Lock(); defer m.mu.Unlock(); return len(m.m) == 0 }
func (m *Map[_, _]) Len() int          { m.mu.Lock(); defer m.mu.Unlock(); return len(m.m) }
func (m *Map[K, V]) Put(key K, v V)    { m.mu.Lock(); m.m[key] = v; m.mu.Unlock() }
func (m *Map[K, _]) RemoveByKey(key K) { m.mu.Lock(); delete(m.m, key); m.mu.Unlock() }

// Keys snapshots the current key set, so the caller can mutate
// the map while iterating over the result.
func (m *Map[K, _]) Keys() []K {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]K, 0, len(m.m))
	for k := range m.m {
		keys = append(keys, k)
	}
	return keys
}

// Find searches for the first match by a specified key value,
// returns ErrNotFound otherwise.
func (m *Map[K, V]) Find(key K) (v V, err error) {
	var empty K
	if key == empty {
		return v, ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if x, ok := m.m[key]; ok {
		return x, nil
	}
	return v, ErrNotFound
}

// FindBy searches the first key-value with the provided predicate function.
func (m *Map[K, V]) FindBy(fn func(v V) bool) (v V, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.m {
		if fn(x) {
			return x, nil
		}
	}
	return v, ErrNotFound
}

// ForEach processes every element with the provided callback function.
func (m *Map[K, V]) ForEach(fn func(v V)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.m {
		fn(x)
	}
}

// NetClient is a connected client tracked by its id.
type NetClient[K comparable] interface {
	Disconnect()
	Id() K
}

// NetMap is a Map for connected clients.
type NetMap[K comparable, T NetClient[K]] struct{ Map[K, T] }

func NewNetMap[K comparable, T NetClient[K]]() NetMap[K, T] {
	return NetMap[K, T]{Map: Map[K, T]{m: make(map[K]T, 10)}}
}

func (m *NetMap[K, T]) Add(client T)              { m.Put(client.Id(), client) }
func (m *NetMap[K, T]) Remove(client T)           { m.RemoveByKey(client.Id()) }
func (m *NetMap[K, T]) RemoveDisconnect(client T) { client.Disconnect(); m.Remove(client) }
