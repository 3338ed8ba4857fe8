// Package series keeps a bounded, timestamped history of sensor values.
package series

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries a history keeps unless told otherwise.
const DefaultCapacity = 1000

// Entry is one recorded value.
type Entry[T any] struct {
	Value     T         `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Buffer is a fixed-capacity ring of entries. Once full, every Append overwrites
// the oldest entry. All methods are safe for concurrent use.
type Buffer[T any] struct {
	mu      sync.Mutex
	entries []Entry[T]
	last    int // physical index of the newest entry
	count   int
}

// NewBuffer creates a buffer holding at most capacity entries; non-positive
// capacities fall back to DefaultCapacity.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer[T]{
		entries: make([]Entry[T], capacity),
		last:    -1,
	}
}

// mod is a modulo whose result is never negative.
func mod(a, n int) int {
	return ((a % n) + n) % n
}

// physical translates a chronological index to a slot. Caller holds mu.
func (b *Buffer[T]) physical(i int) int {
	return mod(b.last-(b.count-1)+i, len(b.entries))
}

// Append records value at ts.
func (b *Buffer[T]) Append(value T, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = mod(b.last+1, len(b.entries))
	b.entries[b.last] = Entry[T]{Value: value, Timestamp: ts}
	if b.count < len(b.entries) {
		b.count++
	}
}

// First returns the oldest entry.
func (b *Buffer[T]) First() (Entry[T], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return Entry[T]{}, false
	}
	return b.entries[b.physical(0)], true
}

// Last returns the newest entry.
func (b *Buffer[T]) Last() (Entry[T], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return Entry[T]{}, false
	}
	return b.entries[b.last], true
}

// At returns the i-th entry in chronological order, 0 being the oldest.
func (b *Buffer[T]) At(i int) (Entry[T], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= b.count {
		return Entry[T]{}, false
	}
	return b.entries[b.physical(i)], true
}

func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *Buffer[T]) Cap() int { return len(b.entries) }

// Entries returns a chronological copy of the retained entries.
func (b *Buffer[T]) Entries() []Entry[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry[T], b.count)
	for i := range out {
		out[i] = b.entries[b.physical(i)]
	}
	return out
}

// Range calls fn for each entry from oldest to newest until fn returns false.
// The buffer is locked for the duration, so fn must not call back into it.
func (b *Buffer[T]) Range(fn func(i int, e Entry[T]) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < b.count; i++ {
		if !fn(i, b.entries[b.physical(i)]) {
			return
		}
	}
}

// Since returns the entries recorded at or after t, oldest first.
func (b *Buffer[T]) Since(t time.Time) []Entry[T] {
	var out []Entry[T]
	b.Range(func(_ int, e Entry[T]) bool {
		if !e.Timestamp.Before(t) {
			out = append(out, e)
		}
		return true
	})
	return out
}

// Reset drops every entry.
func (b *Buffer[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.entries)
	b.last = -1
	b.count = 0
}
