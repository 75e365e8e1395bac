package rangemgr

import (
	"container/heap"
	"fmt"
	"slices"
	"sync"
)

// Node is an allocated interval [Start, End) handed out by Insert.
// A node is owned by its caller until it is passed to Remove.
type Node struct {
	start    uint64
	size     uint64
	align    uint64
	mgr      *Manager // nil once removed
	userData any
}

// UserData returns the value attached with SetUserData.
func (n *Node) UserData() any { return n.userData }

// SetUserData attaches an arbitrary owner value to the node. Not synchronized;
// callers use the same lock that guards the manager.
func (n *Node) SetUserData(v any) { n.userData = v }

// Start returns the first offset of the node.
func (n *Node) Start() uint64 { return n.start }

// Size returns the length of the node in bytes.
func (n *Node) Size() uint64 { return n.size }

// End returns the offset one past the last byte of the node.
func (n *Node) End() uint64 { return n.start + n.size }

// Align returns the alignment the node was inserted with.
func (n *Node) Align() uint64 { return n.align }

// Allocated reports whether the node is still held in its manager.
func (n *Node) Allocated() bool { return n.mgr != nil }

// Manager is a best-fit interval allocator over [0, size).
//   - Min-heap gives perfect best-fit when the smallest block fits
//   - byOff and endIdx give O(1) neighbour lookup for coalescing
//   - used maps node start -> node for validation and iteration
type Manager struct {
	size uint64

	free   freeBlockHeap
	byOff  map[uint64]*freeBlock // start -> free block
	endIdx map[uint64]*freeBlock // end -> free block

	used      map[uint64]*Node
	usedBytes uint64

	// Pool for reusing freeBlock structs
	blockPool sync.Pool

	stats Stats
}

// Stats holds internal allocator statistics for testing and instrumentation.
type Stats struct {
	InsertCalls      int // Total Insert() calls
	InsertFastPath   int // Inserts satisfied by the heap root
	InsertSlowPath   int // Inserts that had to scan the heap
	InsertNoSpace    int // Inserts that returned ErrNoSpace
	RemoveCalls      int // Total Remove() calls
	Splits           int // Free blocks split by an insert
	CoalesceForward  int // Forward merges on Remove
	CoalesceBackward int // Backward merges on Remove
	HeapPushes       int // heap.Push() calls
	HeapRemoves      int // heap.Pop()/heap.Remove() calls
}

// New creates a manager over [0, size) with the whole range free.
func New(size uint64) *Manager {
	m := &Manager{
		size:   size,
		byOff:  make(map[uint64]*freeBlock, 64),
		endIdx: make(map[uint64]*freeBlock, 64),
		used:   make(map[uint64]*Node, 64),
		blockPool: sync.Pool{
			New: func() any {
				return &freeBlock{}
			},
		},
	}
	if size > 0 {
		m.insertFree(0, size)
	}
	return m
}

// Size returns the total size of the managed range.
func (m *Manager) Size() uint64 { return m.size }

// UsedBytes returns the total size of all allocated nodes.
func (m *Manager) UsedBytes() uint64 { return m.usedBytes }

// FreeBytes returns the total size of all free blocks.
func (m *Manager) FreeBytes() uint64 { return m.size - m.usedBytes }

// Len returns the number of allocated nodes.
func (m *Manager) Len() int { return len(m.used) }

// FreeBlocks returns the number of distinct free blocks.
func (m *Manager) FreeBlocks() int { return m.free.Len() }

// LargestFree returns the size of the largest free block. O(n) in free blocks.
func (m *Manager) LargestFree() uint64 {
	var largest uint64
	for _, b := range m.free {
		largest = max(largest, b.size)
	}
	return largest
}

// GetStats returns a copy of the allocator statistics.
func (m *Manager) GetStats() Stats { return m.stats }

// Insert reserves size bytes whose start is a multiple of align.
//
// Fast path: the heap root is the smallest free block; if it fits it is the
// best fit by definition. Slow path: scan the heap for the smallest block that
// fits at the requested alignment (ties go to the lowest offset).
func (m *Manager) Insert(size, align uint64) (*Node, error) {
	m.stats.InsertCalls++

	if size == 0 {
		return nil, ErrBadSize
	}
	if align == 0 {
		return nil, ErrBadAlign
	}
	if size > m.FreeBytes() {
		m.stats.InsertNoSpace++
		return nil, ErrNoSpace
	}

	var best *freeBlock
	var start uint64

	if m.free.Len() > 0 {
		if a, ok := fitAt(m.free[0], size, align); ok {
			m.stats.InsertFastPath++
			best, start = m.free[0], a
		}
	}

	if best == nil {
		for _, b := range m.free[min(1, m.free.Len()):] {
			if b.size < size {
				continue
			}
			a, ok := fitAt(b, size, align)
			if !ok {
				continue
			}
			if best == nil || b.size < best.size || (b.size == best.size && b.off < best.off) {
				best, start = b, a
			}
		}
		if best == nil {
			m.stats.InsertNoSpace++
			return nil, ErrNoSpace
		}
		m.stats.InsertSlowPath++
	}

	off, end := best.off, best.end()
	m.removeFree(best)

	// Return the leading alignment gap and the tail to the free set
	if start > off {
		m.stats.Splits++
		m.insertFree(off, start-off)
	}
	if start+size < end {
		m.stats.Splits++
		m.insertFree(start+size, end-(start+size))
	}

	n := &Node{start: start, size: size, align: align, mgr: m}
	m.used[start] = n
	m.usedBytes += size
	return n, nil
}

// Remove returns a node's interval to the free set, merging it with any
// adjacent free blocks.
func (m *Manager) Remove(n *Node) error {
	m.stats.RemoveCalls++

	if n == nil || n.mgr != m || m.used[n.start] != n {
		return ErrBadNode
	}
	delete(m.used, n.start)
	m.usedBytes -= n.size
	n.mgr = nil

	off, size := n.start, n.size

	// Try to coalesce forward
	if next := m.byOff[off+size]; next != nil {
		m.stats.CoalesceForward++
		size += next.size
		m.removeFree(next)
	}

	// Try to coalesce backward
	if prev := m.endIdx[off]; prev != nil {
		m.stats.CoalesceBackward++
		off = prev.off
		size += prev.size
		m.removeFree(prev)
	}

	m.insertFree(off, size)
	return nil
}

// ForEach calls fn for every allocated node in ascending start order.
// Iteration stops early when fn returns false. fn must not call Insert or
// Remove on m.
func (m *Manager) ForEach(fn func(n *Node) bool) {
	starts := make([]uint64, 0, len(m.used))
	for s := range m.used {
		starts = append(starts, s)
	}
	slices.Sort(starts)
	for _, s := range starts {
		if !fn(m.used[s]) {
			return
		}
	}
}

// Close releases the manager's bookkeeping. Every node must have been
// removed; otherwise ErrNotEmpty is returned and the manager is left intact.
func (m *Manager) Close() error {
	if len(m.used) > 0 {
		return fmt.Errorf("%w: %d node(s), %d bytes", ErrNotEmpty, len(m.used), m.usedBytes)
	}
	for m.free.Len() > 0 {
		m.removeFree(m.free[0])
	}
	return nil
}

// fitAt reports where a request of size bytes at align would start inside b.
func fitAt(b *freeBlock, size, align uint64) (uint64, bool) {
	a := alignUp(b.off, align)
	if a < b.off || a >= b.end() {
		return 0, false
	}
	if b.end()-a < size {
		return 0, false
	}
	return a, true
}

// alignUp rounds off up to the next multiple of align.
func alignUp(off, align uint64) uint64 {
	if align <= 1 {
		return off
	}
	if rem := off % align; rem != 0 {
		return off + (align - rem)
	}
	return off
}

// insertFree adds a free block and indexes it for coalescing.
// O(log n) operation via min-heap.
func (m *Manager) insertFree(off, size uint64) {
	b := m.getBlock()
	b.off = off
	b.size = size

	m.stats.HeapPushes++
	heap.Push(&m.free, b)
	m.byOff[off] = b
	m.endIdx[off+size] = b
}

// removeFree removes a free block from the heap and both indexes.
// O(log n) operation via heap.Remove() with the block's tracked heap index.
func (m *Manager) removeFree(b *freeBlock) {
	m.stats.HeapRemoves++
	heap.Remove(&m.free, b.heapIndex)
	delete(m.byOff, b.off)
	delete(m.endIdx, b.end())
	m.putBlock(b)
}

func (m *Manager) getBlock() *freeBlock {
	b, ok := m.blockPool.Get().(*freeBlock)
	if !ok {
		return &freeBlock{}
	}
	return b
}

func (m *Manager) putBlock(b *freeBlock) {
	b.heapIndex = -1
	b.off, b.size = 0, 0
	m.blockPool.Put(b)
}
