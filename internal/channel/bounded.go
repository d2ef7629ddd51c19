// Package channel provides the bounded channel primitive behind the
// snapshot fan-out.
package channel

import (
	"sync"
	"sync/atomic"
)

// Bounded is a fixed-capacity buffered channel with non-blocking send and
// receive. Publishers that must never stall compose drop-oldest delivery
// from TrySend and TryReceive; receivers select on Chan.
//
// Close is safe to call while receivers are draining. Buffered values stay
// readable after Close.
type Bounded[T any] struct {
	mu     sync.RWMutex
	ch     chan T
	closed bool

	sends atomic.Int64
	drops atomic.Int64
}

// NewBounded creates a Bounded with the given capacity. Capacity is clamped
// to at least 1 so TrySend-then-TryReceive retry loops always make progress.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[T]{ch: make(chan T, capacity)}
}

// TrySend attempts a non-blocking send. It reports false when the buffer is
// full or the channel is closed.
func (b *Bounded[T]) TrySend(v T) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.ch <- v:
		b.sends.Add(1)
		return true
	default:
		b.drops.Add(1)
		return false
	}
}

// TryReceive attempts a non-blocking receive of the oldest buffered value.
func (b *Bounded[T]) TryReceive() (T, bool) {
	select {
	case v, ok := <-b.ch:
		if !ok {
			var zero T
			return zero, false
		}
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Chan returns the receive side for use in select statements. The channel
// closes when Close is called.
func (b *Bounded[T]) Chan() <-chan T {
	return b.ch
}

// Len returns the number of buffered values.
func (b *Bounded[T]) Len() int {
	return len(b.ch)
}

// Cap returns the buffer capacity.
func (b *Bounded[T]) Cap() int {
	return cap(b.ch)
}

// Drops returns the number of sends refused on a full buffer.
func (b *Bounded[T]) Drops() int64 {
	return b.drops.Load()
}

// Close closes the channel. Further TrySend calls report false; buffered
// values remain receivable. Close is idempotent and excludes in-flight
// sends, so a send never hits a closed channel.
func (b *Bounded[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
