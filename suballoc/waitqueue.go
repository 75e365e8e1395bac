package suballoc

import "sync/atomic"

// waitQueue parks allocations until something is freed.
//
// Waiters call prepare before re-checking for space and then block on the
// returned channel. wakeAll closes the current channel, so any wake issued
// after prepare is observed even if it races with the re-check. Both sides
// are lock-free, so wakeAll is safe from fence callbacks.
type waitQueue struct {
	ch      atomic.Pointer[chan struct{}]
	waiters atomic.Int32
}

// prepare returns the channel that the next wakeAll will close.
func (q *waitQueue) prepare() <-chan struct{} {
	for {
		if p := q.ch.Load(); p != nil {
			return *p
		}
		c := make(chan struct{})
		if q.ch.CompareAndSwap(nil, &c) {
			return c
		}
	}
}

// wakeAll releases every goroutine blocked on a channel from prepare.
func (q *waitQueue) wakeAll() {
	if p := q.ch.Swap(nil); p != nil {
		close(*p)
	}
}
