package suballoc

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshuapare/suballoc/rangemgr"
)

// WaitMode selects whether a blocked allocation can be cancelled.
type WaitMode int

const (
	// Uninterruptible allocations wait until space is available regardless
	// of ctx cancellation.
	Uninterruptible WaitMode = iota

	// Interruptible allocations return ErrInterrupted when ctx is cancelled
	// or its deadline passes while they wait.
	Interruptible
)

// String returns the mode name.
func (w WaitMode) String() string {
	switch w {
	case Uninterruptible:
		return "uninterruptible"
	case Interruptible:
		return "interruptible"
	default:
		return fmt.Sprintf("WaitMode(%d)", int(w))
	}
}

// Alloc reserves size bytes, waiting for space if necessary.
//
// Returns ErrOutOfRange immediately if size exceeds the managed range. When
// the range is full the caller waits for frees; in Interruptible mode a
// cancelled ctx aborts the wait with an error matching both ErrInterrupted
// and ctx.Err(). No partial state is left behind on any error.
func (m *Manager) Alloc(ctx context.Context, size uint64, mode WaitMode) (*Suballocation, error) {
	if err := m.checkSize(size); err != nil {
		return nil, err
	}
	if mode != Interruptible {
		ctx = context.WithoutCancel(ctx)
	}

	// 1. Fairness: one negotiation at a time, FIFO.
	if err := m.fair.Acquire(ctx, 1); err != nil {
		m.stats.interrupts.Add(1)
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	defer m.fair.Release(1)

	registered := false
	defer func() {
		if registered {
			m.wq.waiters.Add(-1)
		}
	}()

	for {
		// Snapshot the wake channel before looking for space so a free that
		// lands between the check and the sleep is not lost.
		wake := m.wq.prepare()

		// 2. Make deferred frees visible.
		m.DrainIdle()

		// 3. Try the range manager.
		s, err := m.insert(size)
		if err == nil {
			if registered {
				m.log.Debug("suballoc wait finished", "size", size, "offset", s.Offset())
			}
			return s, nil
		}
		if !errors.Is(err, ErrNoSpace) {
			return nil, err
		}

		if !registered {
			registered = true
			m.wq.waiters.Add(1)
			m.stats.waits.Add(1)
			m.log.Debug("suballoc waiting for space", "size", size, "mode", mode.String())
		}

		select {
		case <-wake:
		case <-ctx.Done():
			m.stats.interrupts.Add(1)
			m.log.Debug("suballoc wait interrupted", "size", size, "err", ctx.Err())
			return nil, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}
	}
}

// TryAlloc makes a single allocation attempt without waiting.
//
// Returns ErrNoSpace if nothing fits right now or if another allocation is
// already negotiating (queued allocations are never overtaken). Deferred
// frees queued before the call are reclaimed first, waiting for a drain
// already in progress on another goroutine if there is one.
func (m *Manager) TryAlloc(size uint64) (*Suballocation, error) {
	if err := m.checkSize(size); err != nil {
		return nil, err
	}
	if !m.fair.TryAcquire(1) {
		return nil, ErrNoSpace
	}
	defer m.fair.Release(1)

	m.DrainIdle()
	return m.insert(size)
}

func (m *Manager) checkSize(size uint64) error {
	if size == 0 {
		return fmt.Errorf("%w: size must be > 0", ErrBadArgument)
	}
	if size > m.size {
		m.stats.outOfRange.Add(1)
		return fmt.Errorf("%w: %d > %d", ErrOutOfRange, size, m.size)
	}
	return nil
}

// insert reserves a range under the fast lock.
func (m *Manager) insert(size uint64) (*Suballocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	n, err := m.rm.Insert(size, m.align)
	if err != nil {
		if errors.Is(err, rangemgr.ErrNoSpace) {
			return nil, ErrNoSpace
		}
		return nil, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}

	s := &Suballocation{mgr: m, node: n}
	n.SetUserData(s)
	m.stats.onAlloc(size)

	if logAlloc {
		m.log.Info("suballoc alloc", "offset", n.Start(), "size", size)
	}
	return s, nil
}
