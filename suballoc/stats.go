package suballoc

import "sync/atomic"

// Stats is a point-in-time copy of a manager's counters.
type Stats struct {
	Allocs      uint64 `json:"allocs"`       // successful allocations
	Frees       uint64 `json:"frees"`        // Free/FreeNoWait calls accepted
	Reclaimed   uint64 `json:"reclaimed"`    // ranges returned to the range manager
	Deferred    uint64 `json:"deferred"`     // ranges that went through the idle list
	Drained     uint64 `json:"drained"`      // ranges reclaimed by DrainIdle
	Waits       uint64 `json:"waits"`        // allocations that had to wait
	Interrupts  uint64 `json:"interrupts"`   // allocations aborted by ctx
	OutOfRange  uint64 `json:"out_of_range"` // requests larger than the range
	BytesInUse  uint64 `json:"bytes_in_use"`
	PeakInUse   uint64 `json:"peak_in_use"`
	LiveRanges  uint64 `json:"live_ranges"`
	IdleQueued  int64  `json:"idle_queued"`
	WaitersNow  int    `json:"waiters"`
	BytesFreed  uint64 `json:"bytes_freed"`
	BytesIssued uint64 `json:"bytes_issued"`
}

type counters struct {
	allocs     atomic.Uint64
	frees      atomic.Uint64
	reclaimed  atomic.Uint64
	deferred   atomic.Uint64
	drained    atomic.Uint64
	waits      atomic.Uint64
	interrupts atomic.Uint64
	outOfRange atomic.Uint64

	inUse  atomic.Uint64
	peak   atomic.Uint64
	live   atomic.Uint64
	issued atomic.Uint64
	freed  atomic.Uint64
}

// onAlloc is called under the fast lock.
func (c *counters) onAlloc(size uint64) {
	c.allocs.Add(1)
	c.live.Add(1)
	c.issued.Add(size)
	cur := c.inUse.Add(size)
	if cur > c.peak.Load() {
		c.peak.Store(cur)
	}
}

// onFree is called under the fast lock.
func (c *counters) onFree(size uint64) {
	c.reclaimed.Add(1)
	c.live.Add(^uint64(0))
	c.freed.Add(size)
	c.inUse.Add(^(size - 1))
}

// Stats returns the manager's counters. Individual fields are consistent;
// the set as a whole is not a snapshot.
func (m *Manager) Stats() Stats {
	return Stats{
		Allocs:      m.stats.allocs.Load(),
		Frees:       m.stats.frees.Load(),
		Reclaimed:   m.stats.reclaimed.Load(),
		Deferred:    m.stats.deferred.Load(),
		Drained:     m.stats.drained.Load(),
		Waits:       m.stats.waits.Load(),
		Interrupts:  m.stats.interrupts.Load(),
		OutOfRange:  m.stats.outOfRange.Load(),
		BytesInUse:  m.stats.inUse.Load(),
		PeakInUse:   m.stats.peak.Load(),
		LiveRanges:  m.stats.live.Load(),
		IdleQueued:  m.idleLen.Load(),
		WaitersNow:  m.Waiters(),
		BytesFreed:  m.stats.freed.Load(),
		BytesIssued: m.stats.issued.Load(),
	}
}
