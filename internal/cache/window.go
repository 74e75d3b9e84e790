// internal/cache/window.go
package cache

import (
	"errors"
	"sync/atomic"
)

// Entry is one published value and its sequence number (1-based).
type Entry[T any] struct {
	Seq   uint64
	Value T
}

// Window is a bounded ring of the most recent values.
//
// Single writer, many readers. Each slot holds an immutable *Entry that is
// replaced atomically, and the head is advanced only after the slot is
// stored. Readers never block the writer and never observe a partially
// written entry: a slot whose sequence does not match the one requested has
// been evicted and is skipped.
type Window[T any] struct {
	slots []atomic.Pointer[Entry[T]]
	head  atomic.Uint64 // seq of the newest entry, 0 when empty
}

// New creates a window holding at most capacity values.
func New[T any](capacity int) (*Window[T], error) {
	if capacity <= 0 {
		return nil, errors.New("cache: capacity must be > 0")
	}
	return &Window[T]{slots: make([]atomic.Pointer[Entry[T]], capacity)}, nil
}

// Push appends v, evicting the oldest value when full. O(1).
// Push MUST only be called from the owning writer goroutine.
func (w *Window[T]) Push(v T) uint64 {
	seq := w.head.Load() + 1
	w.slots[w.index(seq)].Store(&Entry[T]{Seq: seq, Value: v})
	w.head.Store(seq)
	return seq
}

// Head returns the newest sequence number, 0 when empty.
func (w *Window[T]) Head() uint64 { return w.head.Load() }

// Cap returns the configured capacity.
func (w *Window[T]) Cap() int { return len(w.slots) }

// Len returns the number of values currently held.
func (w *Window[T]) Len() int {
	h := w.head.Load()
	if h > uint64(len(w.slots)) {
		return len(w.slots)
	}
	return int(h)
}

// Latest returns the newest value.
func (w *Window[T]) Latest() (T, bool) {
	var zero T
	h := w.head.Load()
	if h == 0 {
		return zero, false
	}
	e := w.slots[w.index(h)].Load()
	if e == nil || e.Seq < h {
		return zero, false
	}
	// e.Seq > h means the writer lapped us; its value is still the newest.
	return e.Value, true
}

// History returns up to n values, oldest first. n <= 0 returns everything held.
func (w *Window[T]) History(n int) []T {
	entries := w.entries(0, n)
	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}

// entries collects a consistent run of entries newer than after, limited to
// the n newest when n > 0.
func (w *Window[T]) entries(after uint64, n int) []Entry[T] {
	h := w.head.Load()
	if h <= after {
		return nil
	}

	capacity := uint64(len(w.slots))
	lo := after + 1
	if h >= capacity && h-capacity+1 > lo {
		lo = h - capacity + 1
	}
	if n > 0 && h-lo+1 > uint64(n) {
		lo = h - uint64(n) + 1
	}

	out := make([]Entry[T], 0, h-lo+1)
	for s := lo; s <= h; s++ {
		e := w.slots[w.index(s)].Load()
		if e == nil || e.Seq != s {
			// Overwritten after head was read: older entries are gone,
			// restart the run from the next sequence.
			out = out[:0]
			continue
		}
		out = append(out, *e)
	}
	return out
}

func (w *Window[T]) index(seq uint64) int {
	return int(seq % uint64(len(w.slots)))
}
