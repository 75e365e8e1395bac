package suballoc

import (
	"fmt"

	"github.com/joshuapare/suballoc/fence"
	"github.com/joshuapare/suballoc/internal/debug"
)

// Free releases s once f signals.
//
// With a nil or already signaled fence the range is reclaimed before Free
// returns. Otherwise Free takes a reference on f and reclaims the range from
// f's completion callback. Freeing nil is a no-op; freeing twice, or freeing
// through the wrong manager, is a programming error that is logged and
// otherwise ignored.
func (m *Manager) Free(s *Suballocation, f fence.Signal) {
	m.free(s, f, false)
}

// FreeNoWait is Free for callers that must not block on the fast lock, such
// as fence callbacks. If the lock is busy the range goes on the idle list and
// is reclaimed by the next allocation, DrainIdle or background reclaim.
func (m *Manager) FreeNoWait(s *Suballocation, f fence.Signal) {
	m.free(s, f, true)
}

func (m *Manager) free(s *Suballocation, f fence.Signal, restricted bool) {
	if s == nil {
		return
	}
	if s.mgr != m {
		debug.Assert(false, "suballoc: free through foreign manager")
		m.log.Error("suballoc free through foreign manager", "range", s.String())
		return
	}
	if !s.state.CompareAndSwap(stateLive, statePending) {
		debug.Assert(false, func() string { return fmt.Sprintf("suballoc: double free of %s", s) })
		m.log.Error("suballoc double free", "offset", s.Offset(), "size", s.Size())
		return
	}
	m.stats.frees.Add(1)

	if f == nil || f.IsSignaled() {
		m.release(s, restricted)
		return
	}

	f.Retain()
	s.sig.Store(&signalRef{f: f})
	if err := f.AddCallback(s.onSignaled); err != nil {
		// Signaled between the check and the registration.
		m.release(s, restricted)
		return
	}

	if logAlloc {
		m.log.Info("suballoc free deferred", "offset", s.Offset(), "size", s.Size(), "fence", signalID(f))
	}
}

// onSignaled runs on whatever goroutine signals the fence.
func (s *Suballocation) onSignaled(fence.Signal) {
	s.mgr.release(s, true)
}

// release returns s to the range manager, or queues it on the idle list if
// restricted and the fast lock is contended.
func (m *Manager) release(s *Suballocation, restricted bool) {
	if restricted {
		if !m.mu.TryLock() {
			m.pushIdle(s)
			return
		}
	} else {
		m.mu.Lock()
	}
	m.reclaimLocked(s)
	m.mu.Unlock()

	m.finish(s)
	m.wq.wakeAll()
}

// pushIdle queues s for deferred reclaim. O(1) under idleMu.
func (m *Manager) pushIdle(s *Suballocation) {
	m.idleMu.Lock()
	s.idleNext = m.idle
	m.idle = s
	m.idleLen.Add(1)
	m.idleMu.Unlock()

	m.stats.deferred.Add(1)
	m.wq.wakeAll()
}

// reclaimLocked removes the range from the range manager. Caller holds mu.
func (m *Manager) reclaimLocked(s *Suballocation) {
	size := s.Size()
	err := m.rm.Remove(s.node)
	debug.Assert(err == nil, func() string { return fmt.Sprintf("suballoc: reclaim %s: %v", s, err) })
	if err != nil {
		m.log.Error("suballoc reclaim failed", "range", s.String(), "err", err)
		return
	}
	m.stats.onFree(size)

	if logAlloc {
		m.log.Info("suballoc reclaim", "offset", s.Offset(), "size", size)
	}
}

// finish drops the fence reference. Runs outside mu.
func (m *Manager) finish(s *Suballocation) {
	s.state.Store(stateFreed)
	if r := s.sig.Swap(nil); r != nil {
		r.f.Release()
	}
}

// DrainIdle reclaims every range on the idle list and returns how many it
// reclaimed. Safe to call at any time from a context that may block; an
// empty list returns immediately without taking any lock. If another drain
// is in flight, DrainIdle waits for it, so on return every range queued
// before the call has been reclaimed.
func (m *Manager) DrainIdle() int {
	if m.idleLen.Load() == 0 {
		return 0
	}

	m.drainMu.Lock()
	defer m.drainMu.Unlock()
	return m.drainLocked()
}

// drainLocked does the work of DrainIdle. Caller holds drainMu.
func (m *Manager) drainLocked() int {
	// Take the whole list so producers never wait on reclaim.
	m.idleMu.Lock()
	head := m.idle
	m.idle = nil
	m.idleMu.Unlock()

	if head == nil {
		return 0
	}

	n := 0
	m.mu.Lock()
	for s := head; s != nil; s = s.idleNext {
		m.reclaimLocked(s)
		n++
	}
	m.mu.Unlock()

	for s := head; s != nil; {
		next := s.idleNext
		s.idleNext = nil
		m.finish(s)
		s = next
	}

	m.idleLen.Add(int64(-n))
	m.stats.drained.Add(uint64(n))
	debug.Log(func() string { return fmt.Sprintf("suballoc %s: drained %d idle range(s)", m.name, n) })

	m.wq.wakeAll()
	return n
}
