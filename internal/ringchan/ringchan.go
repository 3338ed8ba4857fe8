// Package ringchan provides a bounded channel that drops its oldest element
// instead of blocking the producer.
package ringchan

import (
	"context"
	"sync"
	"sync/atomic"
)

// RingChannel wraps a buffered channel with overwrite-oldest semantics.
//
// Producers (Send) never block. Consumers may range over C() or use Receive
// to have deliveries counted. Sending after Close is a no-op that reports false.
type RingChannel[T any] struct {
	ch chan T

	mu     sync.Mutex // serializes producers with Close
	closed bool

	written     atomic.Int64
	overwritten atomic.Int64
	processed   atomic.Int64
}

// New creates a ring channel holding at most capacity elements.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Reads through it are not counted as processed.
func (rc *RingChannel[T]) C() <-chan T { return rc.ch }

// Send enqueues v, discarding the oldest element when full. It reports
// whether v was accepted, which is false only after Close.
func (rc *RingChannel[T]) Send(v T) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return false
	}
	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return true
		default:
		}
		select {
		case <-rc.ch:
			rc.overwritten.Add(1)
		default:
			// a consumer emptied a slot in between
		}
	}
}

// TrySend enqueues v only if there is room.
func (rc *RingChannel[T]) TrySend(v T) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return false
	}
	select {
	case rc.ch <- v:
		rc.written.Add(1)
		return true
	default:
		return false
	}
}

// Receive waits for a value. ok is false when the channel is closed and
// drained or ctx is done.
func (rc *RingChannel[T]) Receive(ctx context.Context) (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.processed.Add(1)
		}
		return v, ok
	case <-ctx.Done():
		return v, false
	}
}

// TryReceive returns a buffered value without waiting.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.processed.Add(1)
		}
		return v, ok
	default:
		return v, false
	}
}

func (rc *RingChannel[T]) Len() int { return len(rc.ch) }
func (rc *RingChannel[T]) Cap() int { return cap(rc.ch) }

// Close closes the channel; buffered values remain readable. Closing twice is safe.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}

// Metrics is a snapshot of the channel counters.
type Metrics struct {
	Written     int64
	Overwritten int64
	Processed   int64
}

func (rc *RingChannel[T]) Metrics() Metrics {
	return Metrics{
		Written:     rc.written.Load(),
		Overwritten: rc.overwritten.Load(),
		Processed:   rc.processed.Load(),
	}
}
