package suballoc_test

import (
	"cmp"
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/suballoc/fence"
	"github.com/joshuapare/suballoc/internal/testutil"
	"github.com/joshuapare/suballoc/suballoc"
)

// liveSet tracks ranges a test still owns so overlap and capacity can be
// checked while other goroutines allocate.
type liveSet struct {
	mu sync.Mutex
	m  map[*suballoc.Suballocation]struct{}
}

func (l *liveSet) add(s *suballoc.Suballocation) {
	l.mu.Lock()
	l.m[s] = struct{}{}
	l.mu.Unlock()
}

func (l *liveSet) remove(s *suballoc.Suballocation) {
	l.mu.Lock()
	delete(l.m, s)
	l.mu.Unlock()
}

// check runs on worker goroutines, so it reports instead of failing the test.
func (l *liveSet) check(m *suballoc.Manager) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := make([]*suballoc.Suballocation, 0, len(l.m))
	for s := range l.m {
		all = append(all, s)
	}
	slices.SortFunc(all, func(a, b *suballoc.Suballocation) int { return cmp.Compare(a.Offset(), b.Offset()) })

	var total uint64
	for i, s := range all {
		if s.Offset()%m.Align() != 0 {
			return fmt.Errorf("range %s not aligned to %d", s, m.Align())
		}
		if i > 0 && all[i-1].End() > s.Offset() {
			return fmt.Errorf("ranges %s and %s overlap", all[i-1], s)
		}
		total += s.Size()
	}
	if total > m.Size() {
		return fmt.Errorf("live bytes %d exceed capacity %d", total, m.Size())
	}
	return nil
}

// Test_Fuzz_ConcurrentAllocFree runs allocators against a completion
// goroutine that signals fences out of band, mixing immediate, fenced and
// no-wait frees.
func Test_Fuzz_ConcurrentAllocFree(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrent fuzz in short mode")
	}
	const (
		size    = 1 << 16
		align   = 16
		workers = 8
		steps   = 300
	)
	m := testutil.NewManager(t, size, align)
	live := &liveSet{m: make(map[*suballoc.Suballocation]struct{})}

	pending := make(chan *fence.Fence, workers*steps)
	tl := fence.NewTimeline("fuzz")

	var signaler sync.WaitGroup
	signaler.Add(1)
	go func() {
		defer signaler.Done()
		for f := range pending {
			_ = f.Signal()
			f.Release()
		}
	}()

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(int64(42 + w)))
			for range steps {
				n := uint64(rng.Intn(size/8) + 1)
				s, err := m.Alloc(gctx, n, suballoc.Interruptible)
				if err != nil {
					return err
				}
				live.add(s)
				if rng.Intn(8) == 0 {
					if err := live.check(m); err != nil {
						return err
					}
				}
				live.remove(s)

				switch rng.Intn(4) {
				case 0:
					m.Free(s, nil)
				case 1:
					m.Free(s, fence.NewSignaled())
				case 2:
					m.FreeNoWait(s, nil)
				default:
					f := tl.Next()
					m.Free(s, f)
					pending <- f
				}
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	close(pending)
	signaler.Wait()
	m.DrainIdle()

	st := m.Stats()
	require.Equal(t, uint64(workers*steps), st.Allocs)
	require.Equal(t, uint64(workers*steps), st.Reclaimed)
	require.Zero(t, st.BytesInUse)
	require.Zero(t, st.LiveRanges)
	require.LessOrEqual(t, st.PeakInUse, uint64(size))
	require.Empty(t, m.Snapshot(0).Ranges)
}
