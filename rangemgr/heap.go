package rangemgr

// freeBlock is a maximal free interval [off, off+size).
// Used in the min-heap for best-fit lookup and in the coalescing maps.
type freeBlock struct {
	off       uint64
	size      uint64
	heapIndex int // Position in heap (for heap.Remove)
}

func (b *freeBlock) end() uint64 { return b.off + b.size }

// freeBlockHeap implements heap.Interface for a min-heap keyed on block size.
// Smallest blocks are at the top, giving us best-fit allocation. Equal sizes
// are ordered by offset so results are deterministic.
type freeBlockHeap []*freeBlock

func (h *freeBlockHeap) Len() int { return len(*h) }

func (h *freeBlockHeap) Less(i, j int) bool {
	a, b := (*h)[i], (*h)[j]
	if a.size != b.size {
		return a.size < b.size
	}
	return a.off < b.off
}

func (h *freeBlockHeap) Swap(i, j int) {
	(*h)[i], (*h)[j] = (*h)[j], (*h)[i]
	(*h)[i].heapIndex = i
	(*h)[j].heapIndex = j
}

func (h *freeBlockHeap) Push(x any) {
	b := x.(*freeBlock) //nolint:errcheck // heap.Interface contract guarantees type
	b.heapIndex = len(*h)
	*h = append(*h, b)
}

func (h *freeBlockHeap) Pop() any {
	old := *h
	n := len(old)
	b := old[n-1]
	old[n-1] = nil
	b.heapIndex = -1
	*h = old[0 : n-1]
	return b
}
