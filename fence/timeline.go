package fence

import "sync/atomic"

// contextCounter hands out unique timeline ids. 0 is reserved for stub fences.
var contextCounter atomic.Uint64

// AllocContext returns a fresh, process-unique fence context id.
func AllocContext() uint64 {
	return contextCounter.Add(1)
}

// Timeline issues fences sharing one context id with increasing seqnos.
// Safe for concurrent use.
type Timeline struct {
	name  string
	ctx   uint64
	seqno atomic.Uint64
}

// NewTimeline allocates a new fence context.
func NewTimeline(name string) *Timeline {
	return &Timeline{name: name, ctx: AllocContext()}
}

// Name returns the timeline's name.
func (tl *Timeline) Name() string { return tl.name }

// Context returns the timeline's context id.
func (tl *Timeline) Context() uint64 { return tl.ctx }

// Next returns a new unsignaled fence with the next seqno.
func (tl *Timeline) Next() *Fence {
	return New(tl.ctx, tl.seqno.Add(1))
}

// Last returns the seqno of the most recently issued fence (0 if none).
func (tl *Timeline) Last() uint64 {
	return tl.seqno.Load()
}
