// File: internal/lifecycle/tracked.go
package lifecycle

import "sync"

// Tracked is an ordered live-set of resource handles. Handles are appended in
// creation order and drained newest-first, so teardown unwinds creation.
// Removal is by identity, which for interface values holding pointers means
// the exact handle that was added.
type Tracked[T comparable] struct {
	mu    sync.Mutex
	items []T
}

// NewTracked returns an empty live-set.
func NewTracked[T comparable]() *Tracked[T] {
	return &Tracked[T]{}
}

// Add appends a handle to the live-set.
func (t *Tracked[T]) Add(item T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, item)
}

// Remove takes a handle out of the live-set. It reports whether the handle
// was present.
func (t *Tracked[T]) Remove(item T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.items {
		if existing == item {
			t.items = append(t.items[:i], t.items[i+1:]...)
			return true
		}
	}
	return false
}

// Drain empties the live-set and returns the handles newest-first.
func (t *Tracked[T]) Drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]T, 0, len(t.items))
	for i := len(t.items) - 1; i >= 0; i-- {
		out = append(out, t.items[i])
	}
	t.items = nil
	return out
}

// Last returns the most recently added handle still in the set.
func (t *Tracked[T]) Last() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero T
	if len(t.items) == 0 {
		return zero, false
	}
	return t.items[len(t.items)-1], true
}

// Len reports how many handles are live.
func (t *Tracked[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}
