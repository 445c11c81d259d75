// Package window provides a bounded, insertion-ordered buffer that evicts its
// oldest entry once capacity is reached.
package window

import "sync"

// Window is a fixed-capacity ring buffer. Appends are O(1). It expects a
// single writer; concurrent readers are safe.
type Window[T any] struct {
	mu   sync.RWMutex
	buf  []T
	head int // index of the oldest entry
	size int
	copy func(T) T
}

// Option configures Window.
type Option[T any] func(*Window[T])

// WithCopy sets the function used to copy entries in and out of the window.
// Types holding slices or maps need it so callers never alias stored entries.
func WithCopy[T any](fn func(T) T) Option[T] {
	return func(w *Window[T]) {
		if fn != nil {
			w.copy = fn
		}
	}
}

// New creates a window holding at most capacity entries. Capacity below one
// is raised to one.
func New[T any](capacity int, opts ...Option[T]) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	w := &Window[T]{buf: make([]T, capacity), copy: func(v T) T { return v }}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append inserts v at the tail, evicting the oldest entry when full. It
// reports whether an entry was evicted.
func (w *Window[T]) Append(v T) (evicted bool) {
	v = w.copy(v)
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.buf)
	if w.size < n {
		w.buf[(w.head+w.size)%n] = v
		w.size++
		return false
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % n
	return true
}

// Snapshot returns the entries oldest first in a freshly allocated slice.
func (w *Window[T]) Snapshot() []T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastLocked(w.size)
}

// Last returns up to n of the most recent entries, oldest first.
func (w *Window[T]) Last(n int) []T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if n <= 0 || n > w.size {
		n = w.size
	}
	return w.lastLocked(n)
}

func (w *Window[T]) lastLocked(n int) []T {
	out := make([]T, n)
	start := w.head + w.size - n
	for i := 0; i < n; i++ {
		out[i] = w.copy(w.buf[(start+i)%len(w.buf)])
	}
	return out
}

// Latest returns the most recent entry, or the zero value and false when empty.
func (w *Window[T]) Latest() (T, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.size == 0 {
		var zero T
		return zero, false
	}
	return w.copy(w.buf[(w.head+w.size-1)%len(w.buf)]), true
}

// Len returns the number of entries held.
func (w *Window[T]) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size
}

// Cap returns the configured capacity.
func (w *Window[T]) Cap() int {
	return len(w.buf)
}
