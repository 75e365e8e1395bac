// Package fence provides reference-counted completion fences.
//
// # Overview
//
// A Fence represents the completion of some asynchronous piece of work (a
// job on a hardware queue, a DMA transfer, a copy). It starts unsignaled and
// transitions exactly once to signaled. Interested parties either poll
// IsSignaled, block in Wait, or register a callback with AddCallback.
//
// # Callbacks
//
// Callbacks run synchronously on the goroutine that calls Signal, in
// registration order, exactly once. A callback must assume it runs in a
// restricted context: it must not block and must not take locks that the
// signalling goroutine may already hold. AddCallback on a fence that is
// already signaled returns ErrAlreadySignaled and does not invoke the
// callback; the caller handles completion itself.
//
// # Reference Counting
//
// New fences carry one reference. Holders that keep a fence beyond the
// lifetime of the reference they were handed call Retain, and Release when
// done. Reference counts are tracked with atomics; the count going negative is
// a programming error reported by internal/debug assertions.
//
// # Timelines
//
// A Timeline hands out fences with a shared context id and monotonically
// increasing sequence numbers, giving every fence a stable "context#seqno"
// identity for diagnostics:
//
//	tl := fence.NewTimeline("copy-queue")
//	f := tl.Next()       // context=N, seqno=1
//	go func() {
//	    doWork()
//	    f.Signal()
//	}()
//	_ = f.Wait(ctx)
package fence
