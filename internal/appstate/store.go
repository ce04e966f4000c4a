// Package appstate holds the shared mapping of widget and script result
// values exchanged between the panel and its scripts.
//
// The store is the single piece of mutable shared state in the system.
// Widget handlers write their own keys, the scheduler writes result keys,
// and every script invocation receives an immutable snapshot. Values are
// deep-copied at the boundary in both directions so no caller can observe a
// torn or later-mutated state.
package appstate

import (
	"log/slog"
	"sort"
	"sync"
)

// Value is any JSON-compatible value: nil, bool, float64/int, string,
// []any, or map[string]any.
type Value = any

// Snapshot is an immutable point-in-time copy of the store, safe to
// marshal and to hand to another goroutine.
type Snapshot map[string]Value

// Store maps widget ids and script result keys to their current values.
type Store struct {
	mu     sync.RWMutex
	values map[string]Value
	logger *slog.Logger
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		values: make(map[string]Value),
		logger: slog.Default().WithGroup("appstate.Store"),
	}
}

// Set replaces the value under key. The value is deep-copied on the way in;
// mutating it afterwards does not affect the store. Set never fails: values
// are validated by the widget layer before they reach the store.
func (s *Store) Set(key string, value Value) {
	cloned := cloneValue(value)
	s.mu.Lock()
	s.values[key] = cloned
	s.mu.Unlock()
	s.logger.Debug("state updated", "key", key)
}

// SetDefault writes value under key only when the key is absent. Used to
// seed widget defaults without clobbering live values on config reload.
func (s *Store) SetDefault(key string, value Value) {
	cloned := cloneValue(value)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		s.values[key] = cloned
	}
}

// Get returns a copy of the last value written under key.
func (s *Store) Get(key string) (Value, bool) {
	s.mu.RLock()
	v, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// Snapshot returns an internally consistent copy of the whole store. Keys
// from two different Set calls can never tear: the copy happens under one
// read lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(Snapshot, len(s.values))
	for k, v := range s.values {
		snap[k] = cloneValue(v)
	}
	return snap
}

// Keys returns all present keys, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// cloneValue deep-copies the JSON-compatible containers; scalars pass
// through as-is.
func cloneValue(v Value) Value {
	switch tv := v.(type) {
	case map[string]Value:
		out := make(map[string]Value, len(tv))
		for k, item := range tv {
			out[k] = cloneValue(item)
		}
		return out
	case []Value:
		out := make([]Value, len(tv))
		for i, item := range tv {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
