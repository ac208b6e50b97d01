// Package ring implements the bounded FIFO with a configurable overflow
// drop policy used by the UDP endpoint's RX/TX queues, backed by a plain
// slice-based head/tail/size ring and wired to internal/telemetry for
// push/pop outcomes.
package ring

import "github.com/ventosilenzioso/reliudp/internal/telemetry"

// DropPolicy selects what happens when Push is called on a full buffer.
type DropPolicy int

const (
	// DropNewest refuses the incoming push, preserving everything already
	// queued. Used on the TX path to preserve send ordering under
	// sender overrun.
	DropNewest DropPolicy = iota
	// DropOldest evicts the head to make room for the new item,
	// preserving freshness. Used on the RX path so stale datagrams don't
	// starve out fresher ones.
	DropOldest
)

// Buffer is a fixed-capacity FIFO of T. Zero value is not usable; use New.
type Buffer[T any] struct {
	name    string
	buf     []T
	head    int
	tail    int
	size    int
	policy  DropPolicy
	metrics *telemetry.Sink
}

// New constructs a Buffer with the given name (used only as a metrics
// label), capacity, drop policy, and metrics sink. Pass telemetry.NoOp()
// for metrics if none is wired.
func New[T any](name string, capacity int, policy DropPolicy, metrics *telemetry.Sink) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{
		name:    name,
		buf:     make([]T, capacity),
		policy:  policy,
		metrics: metrics,
	}
}

// Cap returns the buffer's fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.buf)
}

// Len returns the number of items currently queued. Invariant: 0 <= Len()
// <= Cap() at all times.
func (b *Buffer[T]) Len() int {
	return b.size
}

func (b *Buffer[T]) Full() bool {
	return b.size == len(b.buf)
}

func (b *Buffer[T]) Empty() bool {
	return b.size == 0
}

// Push enqueues item, applying the configured drop policy if the buffer is
// full. Returns true if item was enqueued (i.e. not dropped under
// DropNewest).
func (b *Buffer[T]) Push(item T) bool {
	if b.Full() {
		if b.policy == DropNewest {
			b.metrics.RingEvent(b.name, telemetry.RingEnqueueDropNewest)
			return false
		}
		b.advanceHead()
		b.metrics.RingEvent(b.name, telemetry.RingEnqueueDropOldest)
	}
	b.buf[b.tail] = item
	b.advanceTail()
	b.metrics.RingEvent(b.name, telemetry.RingEnqueueOK)
	return true
}

// Pop dequeues and returns the oldest item, or the zero value and false if
// the buffer is empty.
func (b *Buffer[T]) Pop() (T, bool) {
	if b.Empty() {
		b.metrics.RingEvent(b.name, telemetry.RingDequeueEmpty)
		var zero T
		return zero, false
	}
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero
	b.advanceHead()
	b.metrics.RingEvent(b.name, telemetry.RingDequeueOK)
	return item, true
}

func (b *Buffer[T]) advanceHead() {
	b.head = (b.head + 1) % len(b.buf)
	b.size--
}

func (b *Buffer[T]) advanceTail() {
	b.tail = (b.tail + 1) % len(b.buf)
	b.size++
}
