package suballoc

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/joshuapare/suballoc/internal/debug"
	"github.com/joshuapare/suballoc/internal/logger"
	"github.com/joshuapare/suballoc/rangemgr"
)

// Runtime tracing of every allocation and free - controlled by SUBALLOC_LOG_ALLOC env var.
var logAlloc = os.Getenv("SUBALLOC_LOG_ALLOC") != ""

// Manager hands out fenced sub-ranges of [0, Size()).
//
// All methods are safe for concurrent use. Free and FreeNoWait may also be
// called from fence callbacks; see FreeNoWait for the constraints.
type Manager struct {
	name    string
	size    uint64
	align   uint64
	log     *slog.Logger
	backing []byte

	// Fast lock. Protects rm and closed. Held only for bounded range manager
	// operations; fence callbacks only ever TryLock it.
	mu     sync.Mutex
	rm     *rangemgr.Manager
	closed bool

	// Idle list of suballocations whose fence fired while mu was busy.
	// idleLen mirrors the list length for a lock-free emptiness check.
	idleMu  sync.Mutex
	idle    *Suballocation
	idleLen atomic.Int64

	// Serializes DrainIdle so a caller never sees an empty list while another
	// drain still holds the detached entries. Never taken by fence callbacks.
	drainMu sync.Mutex

	// Fairness mutex: one allocation negotiation in flight, FIFO order.
	fair *semaphore.Weighted
	wq   waitQueue

	stats counters

	reclaimStop chan struct{}
	reclaimDone chan struct{}
	stopOnce    sync.Once
}

// New creates a manager over [0, size) whose ranges start on multiples of
// align. An align of 0 is treated as 1.
func New(size, align uint64, opts ...Option) (*Manager, error) {
	cfg := config{log: logger.L}
	for _, opt := range opts {
		opt(&cfg)
	}

	if size == 0 {
		return nil, fmt.Errorf("%w: size must be > 0", ErrBadArgument)
	}
	if align == 0 {
		align = 1
	}
	if cfg.backing != nil && uint64(len(cfg.backing)) < size {
		return nil, fmt.Errorf("%w: backing buffer %d bytes, range %d bytes",
			ErrBadArgument, len(cfg.backing), size)
	}
	if cfg.log == nil {
		cfg.log = logger.L
	}
	if cfg.name == "" {
		cfg.name = "suballoc"
	}

	m := &Manager{
		name:    cfg.name,
		size:    size,
		align:   align,
		log:     cfg.log.With("manager", cfg.name),
		backing: cfg.backing,
		rm:      rangemgr.New(size),
		fair:    semaphore.NewWeighted(1),
	}

	if cfg.reclaimInterval > 0 {
		m.startReclaimer(cfg.reclaimInterval)
	}

	m.log.Debug("suballoc manager created",
		"size", size, "align", align, "reclaim_interval", cfg.reclaimInterval)
	return m, nil
}

// Name returns the label given with WithName.
func (m *Manager) Name() string { return m.name }

// Size returns the size of the managed range.
func (m *Manager) Size() uint64 { return m.size }

// Align returns the alignment of every range start.
func (m *Manager) Align() uint64 { return m.align }

// Waiters returns the number of allocations currently parked on the wait queue.
func (m *Manager) Waiters() int { return int(m.wq.waiters.Load()) }

// Close drains the idle list and tears down the range manager.
//
// Every suballocation must already be freed and its fence signaled. Close
// never waits for fences: if ranges are still held it logs each of them and
// returns an error wrapping ErrLeaked, leaving the manager usable so the
// caller can finish cleanup and call Close again. The background reclaimer
// is stopped only once Close succeeds. Close on a closed manager is a no-op.
func (m *Manager) Close() error {
	m.DrainIdle()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}

	if n := m.rm.Len(); n > 0 {
		used := m.rm.UsedBytes()
		m.rm.ForEach(func(node *rangemgr.Node) bool {
			attrs := []any{"start", node.Start(), "end", node.End()}
			if s, ok := node.UserData().(*Suballocation); ok {
				if f := s.Fence(); f != nil {
					attrs = append(attrs, "fence", signalID(f), "signaled", f.IsSignaled())
				}
			}
			m.log.Error("suballoc leaked at close", attrs...)
			return true
		})
		m.mu.Unlock()
		debug.Assert(false, func() string {
			return fmt.Sprintf("suballoc: Close with %d live suballocation(s)", n)
		})
		// The reclaimer keeps running so late fence callbacks are still drained.
		return fmt.Errorf("%w: %d suballocation(s), %d bytes", ErrLeaked, n, used)
	}

	m.closed = true
	err := m.rm.Close()
	m.mu.Unlock()

	// Let any parked allocation observe the closed state.
	m.wq.wakeAll()
	// Outside mu: the reclaimer may be inside DrainIdle.
	m.stopReclaimer()

	m.log.Debug("suballoc manager closed", "allocs", m.stats.allocs.Load())
	return err
}

// startReclaimer runs DrainIdle every interval until Close.
func (m *Manager) startReclaimer(interval time.Duration) {
	m.reclaimStop = make(chan struct{})
	m.reclaimDone = make(chan struct{})

	go func() {
		defer close(m.reclaimDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.reclaimStop:
				return
			case <-ticker.C:
				if n := m.DrainIdle(); n > 0 {
					m.log.Debug("background reclaim", "reclaimed", n)
				}
			}
		}
	}()
}

func (m *Manager) stopReclaimer() {
	if m.reclaimStop == nil {
		return
	}
	m.stopOnce.Do(func() {
		close(m.reclaimStop)
		<-m.reclaimDone
	})
}
