package csync

import (
	"cmp"
	"encoding/json"
	"slices"
	"sync"
)

// Set is a thread-safe set of unique scalar values.
// It uses a RWMutex for concurrent read access and exclusive write access.
// Elements are constrained to ordered types so that snapshots and JSON
// output are deterministic.
type Set[T cmp.Ordered] struct {
	data map[T]struct{}
	mu   sync.RWMutex
}

// NewSet creates a new thread-safe set with the given initial items
func NewSet[T cmp.Ordered](items ...T) *Set[T] {
	s := &Set[T]{
		data: make(map[T]struct{}, len(items)),
	}
	for _, item := range items {
		s.data[item] = struct{}{}
	}
	return s
}

// Contains checks if an item exists in the set
func (s *Set[T]) Contains(item T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.data[item]
	return exists
}

// Add inserts an item and reports whether it was not already present
func (s *Set[T]) Add(item T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(item)
}

// Remove deletes an item and reports whether it was present
func (s *Set[T]) Remove(item T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(item)
}

// AddRange inserts all items and reports whether at least one of them
// was newly added. An empty input changes nothing and returns false.
func (s *Set[T]) AddRange(items ...T) bool {
	if len(items) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, item := range items {
		if s.add(item) {
			changed = true
		}
	}
	return changed
}

// RemoveRange deletes all items and reports whether at least one of them
// was present. An empty input changes nothing and returns false.
func (s *Set[T]) RemoveRange(items ...T) bool {
	if len(items) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, item := range items {
		if s.remove(item) {
			changed = true
		}
	}
	return changed
}

func (s *Set[T]) add(item T) bool {
	if s.data == nil {
		s.data = make(map[T]struct{})
	}
	if _, exists := s.data[item]; exists {
		return false
	}
	s.data[item] = struct{}{}
	return true
}

func (s *Set[T]) remove(item T) bool {
	if _, exists := s.data[item]; !exists {
		return false
	}
	delete(s.data, item)
	return true
}

// Len returns the number of items in the set
func (s *Set[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Clear removes all items from the set
func (s *Set[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[T]struct{})
}

// Values returns a sorted snapshot of all items in the set
func (s *Set[T]) Values() []T {
	s.mu.RLock()
	values := make([]T, 0, len(s.data))
	for item := range s.data {
		values = append(values, item)
	}
	s.mu.RUnlock()

	slices.Sort(values)
	return values
}

// Range iterates over a snapshot of the set taken when the call starts.
// The function f is called for each item. If f returns false, iteration
// stops. Concurrent mutations do not affect an iteration in progress, and
// f may itself mutate the set.
func (s *Set[T]) Range(f func(item T) bool) {
	for _, item := range s.Values() {
		if !f(item) {
			break
		}
	}
}

// Clone creates a copy of the set
func (s *Set[T]) Clone() *Set[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := NewSet[T]()
	for item := range s.data {
		clone.data[item] = struct{}{}
	}
	return clone
}

// MarshalJSON implements json.Marshaler interface.
// The set serializes as a sorted array.
func (s *Set[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON implements json.Unmarshaler interface.
// The decoded items replace the current contents.
func (s *Set[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[T]struct{}, len(items))
	for _, item := range items {
		s.data[item] = struct{}{}
	}
	return nil
}
