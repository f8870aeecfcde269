// Package emitter provides a minimal one-to-many notification primitive.
package emitter

import "sync"

// Emitter fans one event out to every registered handler.
//
// Emit invokes a snapshot of the handlers registered at the moment of the
// call, in registration order. A handler that unsubscribes itself or others
// while an emission is in flight only affects later emissions, never the
// current pass. There is no queuing and no async hop: Emit is a direct call
// chain on the caller's goroutine.
type Emitter[E any] struct {
	mu   sync.Mutex
	subs []*subscription[E]
}

type subscription[E any] struct {
	fn      func(E)
	removed bool
}

func New[E any]() *Emitter[E] {
	return &Emitter[E]{}
}

// On registers handler and returns its unsubscribe function. Calling the
// unsubscribe function more than once is a no-op after the first call.
func (e *Emitter[E]) On(handler func(E)) func() {
	s := &subscription[E]{fn: handler}
	e.mu.Lock()
	e.subs = append(e.subs, s)
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if s.removed {
			return
		}
		s.removed = true
		for i, cur := range e.subs {
			if cur == s {
				e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit synchronously invokes every handler registered when Emit was called.
func (e *Emitter[E]) Emit(event E) {
	e.mu.Lock()
	snapshot := make([]*subscription[E], len(e.subs))
	copy(snapshot, e.subs)
	e.mu.Unlock()

	for _, s := range snapshot {
		s.fn(event)
	}
}

// Len returns the number of currently registered handlers.
func (e *Emitter[E]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
