package suballoc

import (
	"bytes"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/suballoc/rangemgr"
)

// Report is a read-only snapshot of a manager's allocated ranges.
type Report struct {
	Name        string      `json:"name"`
	Base        uint64      `json:"base"`
	Size        uint64      `json:"size"`
	Align       uint64      `json:"align"`
	Used        uint64      `json:"used"`
	Free        uint64      `json:"free"`
	LargestFree uint64      `json:"largest_free"`
	FreeBlocks  int         `json:"free_blocks"`
	Ranges      []RangeInfo `json:"ranges"`
	IdleQueued  int64       `json:"idle_queued"`
	Waiters     int         `json:"waiters"`
}

// RangeInfo describes one allocated range. Start and End include the
// report's base offset.
type RangeInfo struct {
	Start uint64     `json:"start"`
	End   uint64     `json:"end"`
	Size  uint64     `json:"size"`
	Fence *FenceInfo `json:"fence,omitempty"`
}

// FenceInfo identifies the fence a range is waiting on.
type FenceInfo struct {
	Context  uint64 `json:"context"`
	Seqno    uint64 `json:"seqno"`
	Signaled bool   `json:"signaled"`
}

// Snapshot lists every allocated range in ascending order, each offset by
// base. It takes the fast lock and never changes state.
func (m *Manager) Snapshot(base uint64) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Report{
		Name:        m.name,
		Base:        base,
		Size:        m.size,
		Align:       m.align,
		Used:        m.rm.UsedBytes(),
		Free:        m.rm.FreeBytes(),
		LargestFree: m.rm.LargestFree(),
		FreeBlocks:  m.rm.FreeBlocks(),
		Ranges:      make([]RangeInfo, 0, m.rm.Len()),
		IdleQueued:  m.idleLen.Load(),
		Waiters:     m.Waiters(),
	}

	m.rm.ForEach(func(n *rangemgr.Node) bool {
		ri := RangeInfo{
			Start: base + n.Start(),
			End:   base + n.End(),
			Size:  n.Size(),
		}
		if s, ok := n.UserData().(*Suballocation); ok {
			if f := s.Fence(); f != nil {
				ri.Fence = &FenceInfo{Context: f.Context(), Seqno: f.Seqno(), Signaled: f.IsSignaled()}
			}
		}
		r.Ranges = append(r.Ranges, ri)
		return true
	})
	return r
}

// WriteTo renders the report as text, one line per range.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	p := message.NewPrinter(language.English)

	p.Fprintf(&buf, "%s: size %d align %d base 0x%x\n", r.Name, r.Size, r.Align, r.Base)
	for _, ri := range r.Ranges {
		p.Fprintf(&buf, "  [0x%010x 0x%010x] size %8d", ri.Start, ri.End, ri.Size)
		if ri.Fence != nil {
			state := "pending"
			if ri.Fence.Signaled {
				state = "signaled"
			}
			p.Fprintf(&buf, " protected by %d#%d (%s)", ri.Fence.Context, ri.Fence.Seqno, state)
		}
		buf.WriteByte('\n')
	}
	p.Fprintf(&buf, "  %d range(s), used %d, free %d, largest free %d in %d block(s)\n",
		len(r.Ranges), r.Used, r.Free, r.LargestFree, r.FreeBlocks)
	if r.IdleQueued > 0 || r.Waiters > 0 {
		p.Fprintf(&buf, "  idle queued %d, waiters %d\n", r.IdleQueued, r.Waiters)
	}

	return buf.WriteTo(w)
}

// Dump writes Snapshot(base) to w as text.
func (m *Manager) Dump(w io.Writer, base uint64) error {
	_, err := m.Snapshot(base).WriteTo(w)
	return err
}
