package fence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshuapare/suballoc/internal/debug"
)

var (
	// ErrAlreadySignaled is returned by AddCallback and Signal when the fence
	// has already completed.
	ErrAlreadySignaled = errors.New("fence: already signaled")
)

// Callback is invoked once when a fence is signaled.
type Callback func(f Signal)

// Signal is the completion contract consumers depend on.
// *Fence is the canonical implementation.
type Signal interface {
	// IsSignaled reports whether the fence has completed.
	IsSignaled() bool

	// AddCallback registers cb to run when the fence is signaled.
	// Returns ErrAlreadySignaled, without calling cb, if it already was.
	AddCallback(cb Callback) error

	// Retain takes an additional reference.
	Retain()

	// Release drops a reference.
	Release()

	// Context returns the id of the timeline the fence belongs to.
	Context() uint64

	// Seqno returns the fence's position on its timeline.
	Seqno() uint64
}

// Fence is a one-shot, reference-counted completion object.
type Fence struct {
	refs  atomic.Int64
	ctx   uint64
	seqno uint64

	signaled atomic.Bool
	mu       sync.Mutex // protects cbs, err, ts
	cbs      []Callback
	err      error
	ts       time.Time
	done     chan struct{}
}

// New creates an unsignaled fence with one reference.
func New(ctx, seqno uint64) *Fence {
	f := &Fence{
		ctx:   ctx,
		seqno: seqno,
		done:  make(chan struct{}),
	}
	f.refs.Store(1)
	return f
}

// NewSignaled returns a fence that is already signaled. Useful as a
// placeholder where a Signal is required but no work is outstanding.
func NewSignaled() *Fence {
	f := New(0, 0)
	_ = f.Signal()
	return f
}

// Context returns the id of the timeline the fence belongs to.
func (f *Fence) Context() uint64 { return f.ctx }

// Seqno returns the fence's position on its timeline.
func (f *Fence) Seqno() uint64 { return f.seqno }

// String returns the "context#seqno" identity of the fence.
func (f *Fence) String() string { return fmt.Sprintf("%d#%d", f.ctx, f.seqno) }

// IsSignaled reports whether the fence has completed.
func (f *Fence) IsSignaled() bool { return f.signaled.Load() }

// Done returns a channel that is closed when the fence is signaled.
func (f *Fence) Done() <-chan struct{} { return f.done }

// Err returns the error status recorded by SignalError, or nil.
func (f *Fence) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Timestamp returns when the fence was signaled, or the zero time.
func (f *Fence) Timestamp() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ts
}

// Refs returns the current reference count (for tests and diagnostics).
func (f *Fence) Refs() int64 { return f.refs.Load() }

// Retain takes an additional reference.
func (f *Fence) Retain() {
	n := f.refs.Add(1)
	debug.Assert(n > 1, "fence: Retain on released fence")
}

// Release drops a reference.
func (f *Fence) Release() {
	n := f.refs.Add(-1)
	debug.Assert(n >= 0, "fence: too many Release calls")
}

// AddCallback registers cb to run when the fence is signaled.
//
// If the fence is already signaled, ErrAlreadySignaled is returned and cb is
// not called. Otherwise cb will be called exactly once, on the goroutine that
// signals the fence.
func (f *Fence) AddCallback(cb Callback) error {
	if f.signaled.Load() {
		return ErrAlreadySignaled
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Re-check under the lock: Signal may have raced with us.
	if f.signaled.Load() {
		return ErrAlreadySignaled
	}
	f.cbs = append(f.cbs, cb)
	return nil
}

// Signal completes the fence successfully. See SignalError.
func (f *Fence) Signal() error {
	return f.SignalError(nil)
}

// SignalError completes the fence with an error status and runs every
// registered callback on the calling goroutine, in registration order.
//
// Returns ErrAlreadySignaled if the fence had already completed.
func (f *Fence) SignalError(err error) error {
	f.mu.Lock()
	if f.signaled.Load() {
		f.mu.Unlock()
		return ErrAlreadySignaled
	}
	f.err = err
	f.ts = time.Now()
	cbs := f.cbs
	f.cbs = nil
	f.signaled.Store(true)
	close(f.done)
	f.mu.Unlock()

	// Callbacks run without f.mu so they may inspect the fence.
	for _, cb := range cbs {
		cb(f)
	}
	return nil
}

// Wait blocks until the fence is signaled or ctx is done.
// Returns the fence's error status, or ctx.Err().
func (f *Fence) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Signal = (*Fence)(nil)
