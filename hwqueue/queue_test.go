package hwqueue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/suballoc/fence"
	"github.com/joshuapare/suballoc/hwqueue"
	"github.com/joshuapare/suballoc/internal/testutil"
)

func Test_Queue_SignalsInOrder(t *testing.T) {
	q := hwqueue.New("gfx", 8)

	var (
		mu    sync.Mutex
		order []uint64
	)
	// Hold the first job until every callback is registered.
	gate := make(chan struct{})
	var fences []*fence.Fence
	for i := range 5 {
		job := hwqueue.Job{Name: "draw", Cost: time.Millisecond}
		if i == 0 {
			job.Run = func() error { <-gate; return nil }
		}
		f, err := q.Submit(t.Context(), job)
		require.NoError(t, err)
		require.NoError(t, f.AddCallback(func(s fence.Signal) {
			mu.Lock()
			order = append(order, s.Seqno())
			mu.Unlock()
		}))
		fences = append(fences, f)
	}
	close(gate)

	require.NoError(t, q.Close())
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, order)
	require.Zero(t, q.Pending())
	require.Equal(t, uint64(5), q.Completed())

	for _, f := range fences {
		require.True(t, f.IsSignaled())
		require.Equal(t, q.Timeline().Context(), f.Context())
		require.Equal(t, int64(1), f.Refs())
		f.Release()
	}
}

func Test_Queue_PendingNeverExceedsSubmitted(t *testing.T) {
	const jobs = 2000
	q := hwqueue.New("busy", 16)

	stop := make(chan struct{})
	bad := make(chan uint64, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if p := q.Pending(); p > jobs {
				select {
				case bad <- p:
				default:
				}
				return
			}
		}
	}()

	for range jobs {
		f, err := q.Submit(t.Context(), hwqueue.Job{Name: "nop"})
		require.NoError(t, err)
		f.Release()
	}
	require.NoError(t, q.Close())
	close(stop)
	wg.Wait()

	select {
	case p := <-bad:
		t.Fatalf("Pending reported %d with only %d jobs submitted", p, jobs)
	default:
	}
	require.Zero(t, q.Pending())
	require.Equal(t, uint64(jobs), q.Completed())
}

func Test_Queue_JobErrorRecordedOnFence(t *testing.T) {
	q := hwqueue.New("copy", 1)
	defer q.Close()

	boom := errors.New("gpu hang")
	f, err := q.Submit(t.Context(), hwqueue.Job{Name: "bad", Run: func() error { return boom }})
	require.NoError(t, err)
	defer f.Release()

	require.ErrorIs(t, f.Wait(t.Context()), boom)
}

func Test_Queue_SubmitAfterClose(t *testing.T) {
	q := hwqueue.New("dead", 1)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	_, err := q.Submit(t.Context(), hwqueue.Job{})
	require.ErrorIs(t, err, hwqueue.ErrClosed)
}

func Test_Queue_SubmitCancelledWhenFull(t *testing.T) {
	q := hwqueue.New("slow", 1)
	defer q.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	f1, err := q.Submit(t.Context(), hwqueue.Job{Run: func() error {
		close(started)
		<-release
		return nil
	}})
	require.NoError(t, err)
	defer f1.Release()
	<-started

	// Fills the buffer.
	f2, err := q.Submit(t.Context(), hwqueue.Job{})
	require.NoError(t, err)
	defer f2.Release()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, err = q.Submit(ctx, hwqueue.Job{Name: "third"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

// Fences from the queue signal on its completion goroutine, which is the
// restricted path for suballoc: the free must not need the caller.
func Test_Queue_DrivesSuballocFrees(t *testing.T) {
	m := testutil.NewManager(t, 1<<12, 64)
	q := hwqueue.New("dma", 4)

	for range 64 {
		s := testutil.MustAlloc(t, m, 1024)
		f, err := q.Submit(t.Context(), hwqueue.Job{Name: "dma"})
		require.NoError(t, err)
		s.Free(f)
		f.Release()
	}

	require.NoError(t, q.Close())
	m.DrainIdle()

	st := m.Stats()
	require.Equal(t, uint64(64), st.Allocs)
	require.Equal(t, uint64(64), st.Reclaimed)
	require.Zero(t, st.BytesInUse)
	require.Zero(t, m.Snapshot(0).Used)
}
