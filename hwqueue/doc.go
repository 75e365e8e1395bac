// Package hwqueue simulates an in-order hardware command queue.
//
// Each submitted Job gets a fence on the queue's timeline. A single
// completion goroutine runs jobs in submission order and signals their
// fences, so fence callbacks always run on that goroutine rather than on the
// submitter's. This is the shape of the owning subsystem a suballoc.Manager
// is designed for: buffers are allocated, handed to the queue, and freed
// with the job's fence.
//
//	q := hwqueue.New("copy", 64)
//	defer q.Close()
//
//	s, _ := mgr.Alloc(ctx, 4096, suballoc.Interruptible)
//	f, _ := q.Submit(ctx, hwqueue.Job{Name: "upload"})
//	s.Free(f)
//	f.Release()
package hwqueue
