// Package suballoc provides a fenced sub-range allocator.
//
// # Overview
//
// A Manager carves aligned byte ranges out of one linear address space (a GPU
// aperture, a command ring, a staging buffer) and defers their reclamation
// until an associated fence signals. Ranges are released by attaching the
// fence of the last piece of work that uses them:
//
//	m, err := suballoc.New(1<<20, 256)
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	sa, err := m.Alloc(ctx, 4096, suballoc.Interruptible)
//	if err != nil {
//	    return err
//	}
//	f := queue.Submit(job(sa.Offset(), sa.Size()))
//	m.Free(sa, f) // range returns to the pool once f signals
//
// # Allocation
//
// Alloc serialises allocation attempts through a FIFO fairness semaphore so
// that a stream of small requests cannot starve an older large one. Each
// attempt runs, in this fixed order:
//
//  1. acquire the fairness semaphore
//  2. drain the idle list (deferred frees become visible)
//  3. insert into the range manager under the fast lock
//
// When nothing fits the caller parks on the wait queue and repeats steps 2-3
// after every wake. Interruptible allocations give up with ErrInterrupted
// when ctx is cancelled or its deadline passes; Uninterruptible allocations
// ignore ctx cancellation.
//
// # Release
//
// Free with a nil or already signaled fence reclaims immediately. Otherwise a
// callback is registered on the fence. The callback runs on whatever goroutine
// signals the fence, so it never blocks: it try-locks the fast lock and
// reclaims in place, or pushes the suballocation onto the idle list for the
// next allocation (or DrainIdle call) to reclaim.
//
// # Locks
//
//   - fast lock (Manager.mu): range manager state. Normal paths Lock it;
//     fence callbacks only TryLock it.
//   - idle lock (Manager.idleMu): idle list only; O(1) critical sections.
//   - drain lock (Manager.drainMu): one DrainIdle at a time. Taken before
//     the idle and fast locks, never by fence callbacks.
//   - fairness semaphore: held across a whole allocation attempt, including
//     sleeps. Never taken by the release path.
//
// # Teardown
//
// Close drains the idle list and tears down the range manager. Every
// suballocation must have been freed and its fence signaled; leftovers are a
// usage error reported as ErrLeaked; the manager (and its background
// reclaimer, if any) keeps running until a later Close succeeds.
package suballoc
