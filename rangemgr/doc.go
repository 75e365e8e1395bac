// Package rangemgr provides a best-fit interval allocator over a single linear
// address space [0, size).
//
// # Overview
//
// A Manager hands out aligned, non-overlapping sub-ranges ("nodes") of a fixed
// address space and takes them back on Remove. It does not own any memory; it
// only tracks geometry. Higher layers (package suballoc) attach lifetimes and
// synchronization on top of it.
//
// # Free Set
//
// Free space is kept as maximal free blocks:
//
//   - free: min-heap of blocks keyed on size (ties broken by offset), giving
//     an O(1) best-fit fast path when the smallest block fits
//   - byOff: block start -> block, for O(1) forward coalescing
//   - endIdx: block end -> block, for O(1) backward coalescing
//
// Adjacent free blocks are always merged on Remove, so the free set never
// contains two touching blocks.
//
// # Alignment
//
// Insert accepts any non-zero alignment. When the chosen block does not start
// on an aligned offset, the leading gap is returned to the free set:
//
//	block:  [off ........................ off+size)
//	split:  [off, a) free | [a, a+need) node | [a+need, end) free
//
// # Usage Example
//
//	rm := rangemgr.New(1 << 20)
//
//	n, err := rm.Insert(4096, 256)
//	if err != nil {
//	    return err // rangemgr.ErrNoSpace when nothing fits
//	}
//	fmt.Printf("[%#x, %#x)\n", n.Start(), n.End())
//
//	if err := rm.Remove(n); err != nil {
//	    return err
//	}
//	return rm.Close()
//
// # Thread Safety
//
// Manager instances are not thread-safe. Callers must synchronize access
// externally; suballoc.Manager does so with its fast lock.
package rangemgr
