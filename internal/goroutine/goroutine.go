// Package goroutine identifies the calling goroutine, so that blocking
// shutdown paths can tell when they are reached from the goroutine they
// would otherwise wait for.
package goroutine

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
)

var prefix = []byte("goroutine ")

var bufs = sync.Pool{
	New: func() any {
		buf := make([]byte, 64)
		return &buf
	},
}

// ID returns the runtime's id for the calling goroutine.
func ID() uint64 {
	bp := bufs.Get().(*[]byte)
	defer bufs.Put(bp)

	// The trace starts with "goroutine 4707 [running]:".
	b := (*bp)[:runtime.Stack(*bp, false)]
	b = bytes.TrimPrefix(b, prefix)
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		panic(fmt.Sprintf("goroutine: no id in %q", b))
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		panic(fmt.Sprintf("goroutine: parse id in %q: %v", b, err))
	}
	return id
}

// Set counts how many times each goroutine has entered and not yet left.
// The zero value is not usable; use NewSet.
type Set struct {
	mu     sync.Mutex
	idle   *sync.Cond
	active map[uint64]int
}

// NewSet returns an empty set.
func NewSet() *Set {
	s := &Set{active: make(map[uint64]int)}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Enter records the calling goroutine and returns the func that undoes it.
func (s *Set) Enter() (leave func()) {
	id := ID()
	s.mu.Lock()
	s.active[id]++
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.active[id]--; s.active[id] == 0 {
			delete(s.active, id)
		}
		if len(s.active) == 0 {
			s.idle.Broadcast()
		}
	}
}

// Holds reports whether the calling goroutine is inside the set.
func (s *Set) Holds() bool {
	id := ID()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id] > 0
}

// Wait blocks until no goroutine is inside the set.
func (s *Set) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.active) > 0 {
		s.idle.Wait()
	}
}
