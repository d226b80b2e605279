// Package scheduler runs a task on a fixed period against an injectable clock.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/peder1981/p2p-presence/internal/goroutine"
)

// Task invokes fn every interval until stopped.
type Task struct {
	clock    clock.Clock
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
	loopID  atomic.Uint64
	stopped atomic.Bool
}

// New returns a stopped task. A nil clock means the wall clock.
func New(clk clock.Clock, interval time.Duration, fn func()) *Task {
	if clk == nil {
		clk = clock.New()
	}
	return &Task{
		clock:    clk,
		interval: interval,
		fn:       fn,
	}
}

// Start begins ticking. Starting twice, or after Stop, does nothing.
func (t *Task) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.stopped.Load() {
		return
	}
	t.started = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	ticker := t.clock.Ticker(t.interval)
	go t.loop(ticker)
}

func (t *Task) loop(ticker *clock.Ticker) {
	defer close(t.done)
	defer ticker.Stop()
	t.loopID.Store(goroutine.ID())

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if t.stopped.Load() {
				return
			}
			t.fn()
		}
	}
}

// Stop halts the task. Once Stop returns no new invocation starts, and a
// running one has finished unless Stop was called from the task itself.
func (t *Task) Stop() {
	t.mu.Lock()
	if t.stopped.Swap(true) || !t.started {
		t.mu.Unlock()
		return
	}
	close(t.stop)
	done := t.done
	t.mu.Unlock()

	if goroutine.ID() != t.loopID.Load() {
		<-done
	}
}

// Running reports whether the task has been started and not stopped.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && !t.stopped.Load()
}
