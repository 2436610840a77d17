// Package live binds store records and queries to in-memory state that
// follows the store as it changes.
//
// Each client connection owns one Loop. Store callbacks arrive on arbitrary
// goroutines and are posted to the loop; binding state is only read and
// written by closures running on it, so bindings need no locks.
package live

import (
	"context"
	"sync"
)

// Loop runs posted closures one at a time in FIFO order.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn. It never blocks and may be called from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// RunPending runs queued closures, including ones they post, until the queue
// is empty. It returns how many ran.
func (l *Loop) RunPending() int {
	n := 0
	for {
		fn, ok := l.next()
		if !ok {
			return n
		}
		fn()
		n++
	}
}

// Run processes closures until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}
