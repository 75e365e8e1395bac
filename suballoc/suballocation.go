package suballoc

import (
	"fmt"
	"sync/atomic"

	"github.com/joshuapare/suballoc/fence"
	"github.com/joshuapare/suballoc/rangemgr"
)

// Lifecycle states of a Suballocation.
const (
	stateLive    int32 = iota // range reserved, no free requested
	statePending              // free requested, waiting on fence or idle list
	stateFreed                // range returned to the range manager
)

// Suballocation is one reserved range of a Manager.
//
// The handle stays valid for reading Offset and Size after Free; the range
// itself must not be used once its fence has signaled.
type Suballocation struct {
	mgr  *Manager
	node *rangemgr.Node

	// Written once by Free, cleared when the range is reclaimed.
	sig   atomic.Pointer[signalRef]
	state atomic.Int32

	// Linkage in Manager.idle, guarded by Manager.idleMu.
	idleNext *Suballocation
}

type signalRef struct {
	f fence.Signal
}

// Offset returns the start of the range.
func (s *Suballocation) Offset() uint64 { return s.node.Start() }

// Size returns the requested size of the range.
func (s *Suballocation) Size() uint64 { return s.node.Size() }

// End returns the exclusive end of the range.
func (s *Suballocation) End() uint64 { return s.node.End() }

// Manager returns the manager the range belongs to.
func (s *Suballocation) Manager() *Manager { return s.mgr }

// Bytes returns the backing memory for the range, or nil if the manager was
// created without WithBacking.
func (s *Suballocation) Bytes() []byte {
	if s.mgr.backing == nil {
		return nil
	}
	return s.mgr.backing[s.Offset():s.End():s.End()]
}

// Fence returns the fence the range is waiting on, or nil if it has none or
// was already reclaimed.
func (s *Suballocation) Fence() fence.Signal {
	if r := s.sig.Load(); r != nil {
		return r.f
	}
	return nil
}

// Freed reports whether the range has been returned to the manager.
func (s *Suballocation) Freed() bool { return s.state.Load() == stateFreed }

// Free releases the range once f signals. See Manager.Free.
func (s *Suballocation) Free(f fence.Signal) { s.mgr.Free(s, f) }

func (s *Suballocation) String() string {
	str := fmt.Sprintf("[%#x %#x)", s.Offset(), s.End())
	if f := s.Fence(); f != nil {
		str += " fence " + signalID(f)
	}
	return str
}

// signalID renders a fence as context#seqno.
func signalID(f fence.Signal) string {
	return fmt.Sprintf("%d#%d", f.Context(), f.Seqno())
}
