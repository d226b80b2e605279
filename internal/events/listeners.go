// Package events keeps per-kind listener sets and dispatches to them with
// failure isolation: a panicking handler is reported, never propagated, and
// does not stop the remaining handlers from running.
package events

import (
	"fmt"
	"sync"
)

// Failure describes a handler that panicked during dispatch.
type Failure struct {
	Event string
	Value any
}

func (f Failure) String() string {
	return fmt.Sprintf("%s handler panicked: %v", f.Event, f.Value)
}

// Listeners is a set of handlers for one event kind.
type Listeners[T any] struct {
	name string

	mu       sync.RWMutex
	next     uint64
	handlers map[uint64]func(T)
	order    []uint64
}

// NewListeners returns an empty set; name labels failures.
func NewListeners[T any](name string) *Listeners[T] {
	return &Listeners[T]{
		name:     name,
		handlers: make(map[uint64]func(T)),
	}
}

// Name returns the event kind.
func (l *Listeners[T]) Name() string {
	return l.name
}

// Add registers fn and returns a func that removes it. The returned func is
// safe to call more than once.
func (l *Listeners[T]) Add(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	l.mu.Lock()
	l.next++
	id := l.next
	l.handlers[id] = fn
	l.order = append(l.order, id)
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *Listeners[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered handlers.
func (l *Listeners[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}

// Clear removes every handler.
func (l *Listeners[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = make(map[uint64]func(T))
	l.order = nil
}

// Emit calls every handler in registration order. Handlers added or removed
// during dispatch take effect from the next Emit. Each panic is returned as
// a Failure.
func (l *Listeners[T]) Emit(v T) []Failure {
	l.mu.RLock()
	fns := make([]func(T), 0, len(l.order))
	for _, id := range l.order {
		fns = append(fns, l.handlers[id])
	}
	l.mu.RUnlock()

	var failures []Failure
	for _, fn := range fns {
		if f, ok := Call(l.name, fn, v); !ok {
			failures = append(failures, f)
		}
	}
	return failures
}

// Call invokes fn(v), converting a panic into a Failure. It reports false
// when fn panicked.
func Call[T any](name string, fn func(T), v T) (f Failure, ok bool) {
	if fn == nil {
		return Failure{}, true
	}
	defer func() {
		if r := recover(); r != nil {
			f = Failure{Event: name, Value: r}
			ok = false
		}
	}()
	fn(v)
	return Failure{}, true
}
