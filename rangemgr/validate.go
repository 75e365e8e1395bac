package rangemgr

import (
	"errors"
	"fmt"
	"slices"
)

// ErrCorrupt indicates that Validate found an inconsistency in the free set or
// the allocated set.
var ErrCorrupt = errors.New("rangemgr: corrupt state")

// Validate walks both the allocated nodes and the free blocks and checks:
//   - every byte of [0, size) is covered exactly once
//   - no two free blocks touch (coalescing is complete)
//   - the coalescing indexes agree with the heap
//   - every node start honours its alignment
//
// Intended for tests and debug builds; O(n log n).
func (m *Manager) Validate() error {
	type span struct {
		off, end uint64
		free     bool
	}
	spans := make([]span, 0, len(m.used)+m.free.Len())

	var usedSum uint64
	for s, n := range m.used {
		if n.start != s || n.mgr != m {
			return fmt.Errorf("%w: node index mismatch at %#x", ErrCorrupt, s)
		}
		if n.align > 1 && n.start%n.align != 0 {
			return fmt.Errorf("%w: node %#x violates alignment %d", ErrCorrupt, n.start, n.align)
		}
		usedSum += n.size
		spans = append(spans, span{off: n.start, end: n.End()})
	}
	if usedSum != m.usedBytes {
		return fmt.Errorf("%w: used bytes %d, nodes sum to %d", ErrCorrupt, m.usedBytes, usedSum)
	}

	if len(m.byOff) != m.free.Len() || len(m.endIdx) != m.free.Len() {
		return fmt.Errorf("%w: index sizes byOff=%d endIdx=%d heap=%d",
			ErrCorrupt, len(m.byOff), len(m.endIdx), m.free.Len())
	}
	for i, b := range m.free {
		if b.heapIndex != i {
			return fmt.Errorf("%w: heap index %d recorded as %d", ErrCorrupt, i, b.heapIndex)
		}
		if m.byOff[b.off] != b || m.endIdx[b.end()] != b {
			return fmt.Errorf("%w: free block %#x not indexed", ErrCorrupt, b.off)
		}
		spans = append(spans, span{off: b.off, end: b.end(), free: true})
	}

	slices.SortFunc(spans, func(a, b span) int {
		switch {
		case a.off < b.off:
			return -1
		case a.off > b.off:
			return 1
		}
		return 0
	})

	var cursor uint64
	for i, s := range spans {
		if s.off != cursor {
			return fmt.Errorf("%w: gap or overlap at %#x (expected %#x)", ErrCorrupt, s.off, cursor)
		}
		if i > 0 && s.free && spans[i-1].free {
			return fmt.Errorf("%w: adjacent free blocks at %#x", ErrCorrupt, s.off)
		}
		cursor = s.end
	}
	if cursor != m.size {
		return fmt.Errorf("%w: coverage ends at %#x, size %#x", ErrCorrupt, cursor, m.size)
	}
	return nil
}
