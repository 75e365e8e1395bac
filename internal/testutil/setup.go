package testutil

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/suballoc/suballoc"
)

// DefaultTimeout bounds every blocking call made by helpers in this package.
const DefaultTimeout = 5 * time.Second

// NewManager creates a manager and registers a cleanup that drains it and
// requires a clean Close.
//
// Example:
//
//	m := testutil.NewManager(t, 1000, 1)
//	s := testutil.MustAlloc(t, m, 600)
//	m.Free(s, nil)
func NewManager(t testing.TB, size, align uint64, opts ...suballoc.Option) *suballoc.Manager {
	t.Helper()

	m, err := suballoc.New(size, align, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, m.Close(), "manager still holds ranges at test end")
	})
	return m
}

// MustAlloc allocates size bytes uninterruptibly, failing the test if that
// takes longer than DefaultTimeout.
func MustAlloc(t testing.TB, m *suballoc.Manager, size uint64) *suballoc.Suballocation {
	t.Helper()

	type result struct {
		s   *suballoc.Suballocation
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := m.Alloc(context.Background(), size, suballoc.Uninterruptible)
		done <- result{s, err}
	}()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.NotNil(t, r.s)
		return r.s
	case <-time.After(DefaultTimeout):
		t.Fatalf("Alloc(%d) did not complete within %v", size, DefaultTimeout)
		return nil
	}
}

// CheckRanges verifies that live ranges are in bounds, aligned, disjoint and
// within the manager's capacity.
func CheckRanges(t testing.TB, m *suballoc.Manager, live []*suballoc.Suballocation) {
	t.Helper()

	sorted := append([]*suballoc.Suballocation(nil), live...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset() < sorted[j].Offset() })

	var total uint64
	for i, s := range sorted {
		require.Zero(t, s.Offset()%m.Align(), "range %s not aligned to %d", s, m.Align())
		require.LessOrEqual(t, s.End(), m.Size(), "range %s out of bounds", s)
		if i > 0 {
			prev := sorted[i-1]
			require.LessOrEqual(t, prev.End(), s.Offset(), "ranges %s and %s overlap", prev, s)
		}
		total += s.Size()
	}
	require.LessOrEqual(t, total, m.Size(), "live bytes exceed capacity")
}

// WaitForWaiters blocks until m reports at least n parked allocations.
func WaitForWaiters(t testing.TB, m *suballoc.Manager, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Waiters() >= n },
		DefaultTimeout, time.Millisecond, "expected %d waiter(s)", n)
}
