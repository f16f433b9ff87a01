// Package refcount provides a reference-counted handle that runs a release
// callback exactly once, when the last holder lets go of the payload.
package refcount

import (
	"errors"
	"sync"
)

// ErrReleased is returned when a handle is used after its count reached zero.
var ErrReleased = errors.New("refcount: handle already released")

// Handle wraps a payload shared between goroutines. The creator holds the
// first reference; every other holder must Acquire before crossing a
// goroutine boundary and Release exactly once when done.
type Handle[T any] struct {
	mu       sync.Mutex
	count    int
	payload  T
	released bool
	deleter  func(T)
}

// New wraps payload with a count of one. deleter may be nil.
func New[T any](payload T, deleter func(T)) *Handle[T] {
	return &Handle[T]{
		count:   1,
		payload: payload,
		deleter: deleter,
	}
}

// Acquire adds a reference. It reports false, leaving the count untouched,
// when the handle has already been released.
func (h *Handle[T]) Acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return false
	}
	h.count++
	return true
}

// Release drops one reference. The deleter runs under the handle lock on
// the 1 -> 0 transition, after which the payload is cleared. Releasing a
// handle that is already at zero returns ErrReleased and changes nothing.
func (h *Handle[T]) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return ErrReleased
	}
	h.count--
	if h.count > 0 {
		return nil
	}

	if h.deleter != nil {
		h.deleter(h.payload)
	}
	var zero T
	h.payload = zero
	h.released = true
	return nil
}

// Get returns the payload, or false once the handle has been released.
func (h *Handle[T]) Get() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		var zero T
		return zero, false
	}
	return h.payload, true
}

// Count returns the number of live references.
func (h *Handle[T]) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Released reports whether the deleter has already run.
func (h *Handle[T]) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}
