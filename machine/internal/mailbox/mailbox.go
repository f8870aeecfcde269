// Package mailbox provides the ingress queue feeding a machine's loop goroutine.
package mailbox

import "sync"

// Mailbox is an unbounded, thread-safe FIFO with atomic batch extraction.
//
// Producers call Push from any goroutine. The single consumer waits on Wake
// and then calls Drain, which hands back everything queued so far, oldest
// first, and leaves the mailbox empty. Items pushed while the consumer is
// processing a drained sequence land in the next drain, never the current one,
// so each drain is a clean batch boundary.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	wake   chan struct{}
}

func New[T any](capacityHint int) *Mailbox[T] {
	if capacityHint < 1 {
		capacityHint = 1
	}
	return &Mailbox[T]{
		items: make([]T, 0, capacityHint),
		wake:  make(chan struct{}, 1),
	}
}

// Push appends item and signals the consumer. Returns false if the mailbox is
// closed, in which case the item is dropped. Push never blocks: the wake
// channel has capacity one, so bursts coalesce into a single wakeup.
func (m *Mailbox[T]) Push(item T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

// Drain atomically takes the whole queued sequence. Returns nil when nothing
// is queued, which the consumer should treat as a spurious wakeup.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return nil
	}
	drained := m.items
	m.items = make([]T, 0, cap(drained))
	return drained
}

// Wake returns the channel signaled on Push.
func (m *Mailbox[T]) Wake() <-chan struct{} {
	return m.wake
}

// Close rejects further pushes. Already queued items remain drainable.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
