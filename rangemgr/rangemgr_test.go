package rangemgr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test_RangeMgr_SimpleFit tests basic insertion into an empty manager.
func Test_RangeMgr_SimpleFit(t *testing.T) {
	m := New(1000)

	n, err := m.Insert(600, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), n.Start())
	require.Equal(t, uint64(600), n.End())
	require.True(t, n.Allocated())

	require.Equal(t, uint64(600), m.UsedBytes())
	require.Equal(t, uint64(400), m.FreeBytes())
	require.Equal(t, 1, m.FreeBlocks())
	require.NoError(t, m.Validate())
}

// Test_RangeMgr_NoSpace tests that a request larger than the remaining space fails.
func Test_RangeMgr_NoSpace(t *testing.T) {
	m := New(1000)

	_, err := m.Insert(600, 1)
	require.NoError(t, err)

	_, err = m.Insert(500, 1)
	require.ErrorIs(t, err, ErrNoSpace)
	require.Equal(t, 1, m.GetStats().InsertNoSpace)
	require.NoError(t, m.Validate())
}

// Test_RangeMgr_BadArguments tests argument validation.
func Test_RangeMgr_BadArguments(t *testing.T) {
	m := New(64)

	_, err := m.Insert(0, 1)
	require.ErrorIs(t, err, ErrBadSize)

	_, err = m.Insert(8, 0)
	require.ErrorIs(t, err, ErrBadAlign)

	require.ErrorIs(t, m.Remove(nil), ErrBadNode)
	require.ErrorIs(t, m.Remove(&Node{start: 0, size: 8}), ErrBadNode)
}

// Test_RangeMgr_Alignment tests that leading gaps go back to the free set.
func Test_RangeMgr_Alignment(t *testing.T) {
	m := New(4096)

	a, err := m.Insert(10, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), a.Start())

	b, err := m.Insert(100, 256)
	require.NoError(t, err)
	require.Equal(t, uint64(256), b.Start())
	require.Equal(t, uint64(256), b.Align())

	// Gap [10, 256) must be reusable by an unaligned request
	c, err := m.Insert(200, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(10), c.Start())

	require.NoError(t, m.Validate())
}

// Test_RangeMgr_NonPowerOfTwoAlignment tests that any non-zero alignment is honoured.
func Test_RangeMgr_NonPowerOfTwoAlignment(t *testing.T) {
	m := New(1000)

	_, err := m.Insert(7, 1)
	require.NoError(t, err)

	n, err := m.Insert(30, 24)
	require.NoError(t, err)
	require.Equal(t, uint64(24), n.Start())
	require.Zero(t, n.Start()%24)
	require.NoError(t, m.Validate())
}

// Test_RangeMgr_BestFit tests that the smallest sufficient block is chosen.
func Test_RangeMgr_BestFit(t *testing.T) {
	m := New(1000)

	// Carve [0,100) [100,300) [300,350) [350,1000) and free the 1st and 3rd
	// leaving free blocks of 100 and 50 separated by live nodes.
	n1, err := m.Insert(100, 1)
	require.NoError(t, err)
	_, err = m.Insert(200, 1)
	require.NoError(t, err)
	n3, err := m.Insert(50, 1)
	require.NoError(t, err)
	_, err = m.Insert(650, 1)
	require.NoError(t, err)

	require.NoError(t, m.Remove(n1))
	require.NoError(t, m.Remove(n3))
	require.Equal(t, 2, m.FreeBlocks())

	// 40 bytes fits both; best fit is the 50-byte block at 300
	n, err := m.Insert(40, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(300), n.Start())

	// 60 bytes only fits the 100-byte block at 0
	n, err = m.Insert(60, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), n.Start())

	require.NoError(t, m.Validate())
}

// Test_RangeMgr_SlowPathAlignment tests that the heap root is skipped when its
// alignment does not work out even though it is large enough.
func Test_RangeMgr_SlowPathAlignment(t *testing.T) {
	m := New(1024)

	// Layout: [0,1) live, [1,65) free, [65,128) live, [128,1024) free
	_, err := m.Insert(1, 1)
	require.NoError(t, err)
	gap, err := m.Insert(64, 1)
	require.NoError(t, err)
	_, err = m.Insert(63, 1)
	require.NoError(t, err)
	require.NoError(t, m.Remove(gap))

	// 64-byte block at 1 cannot hold 32 bytes at 64 alignment (64+32 > 65)
	n, err := m.Insert(32, 64)
	require.NoError(t, err)
	require.Equal(t, uint64(128), n.Start())
	require.Equal(t, 1, m.GetStats().InsertSlowPath)
	require.NoError(t, m.Validate())
}

// Test_RangeMgr_Coalesce tests forward and backward merging on Remove.
func Test_RangeMgr_Coalesce(t *testing.T) {
	m := New(300)

	a, err := m.Insert(100, 1)
	require.NoError(t, err)
	b, err := m.Insert(100, 1)
	require.NoError(t, err)
	c, err := m.Insert(100, 1)
	require.NoError(t, err)
	require.Zero(t, m.FreeBlocks())

	require.NoError(t, m.Remove(a))
	require.NoError(t, m.Remove(c))
	require.Equal(t, 2, m.FreeBlocks())

	// Removing the middle merges all three
	require.NoError(t, m.Remove(b))
	require.Equal(t, 1, m.FreeBlocks())
	require.Equal(t, uint64(300), m.LargestFree())

	st := m.GetStats()
	require.Equal(t, 1, st.CoalesceForward)
	require.Equal(t, 1, st.CoalesceBackward)
	require.NoError(t, m.Validate())
}

// Test_RangeMgr_DoubleRemove tests that a node cannot be removed twice.
func Test_RangeMgr_DoubleRemove(t *testing.T) {
	m := New(100)

	n, err := m.Insert(10, 1)
	require.NoError(t, err)
	require.NoError(t, m.Remove(n))
	require.False(t, n.Allocated())
	require.ErrorIs(t, m.Remove(n), ErrBadNode)
}

// Test_RangeMgr_ForeignNode tests that a node from another manager is rejected.
func Test_RangeMgr_ForeignNode(t *testing.T) {
	m1 := New(100)
	m2 := New(100)

	n, err := m1.Insert(10, 1)
	require.NoError(t, err)
	require.ErrorIs(t, m2.Remove(n), ErrBadNode)
	require.NoError(t, m1.Remove(n))
}

// Test_RangeMgr_ForEach tests ordered iteration and early stop.
func Test_RangeMgr_ForEach(t *testing.T) {
	m := New(1000)
	for range 5 {
		_, err := m.Insert(100, 1)
		require.NoError(t, err)
	}

	var starts []uint64
	m.ForEach(func(n *Node) bool {
		starts = append(starts, n.Start())
		return true
	})
	require.Equal(t, []uint64{0, 100, 200, 300, 400}, starts)

	count := 0
	m.ForEach(func(n *Node) bool {
		count++
		return count < 2
	})
	require.Equal(t, 2, count)
}

// Test_RangeMgr_UserData tests that owner values ride along with nodes.
func Test_RangeMgr_UserData(t *testing.T) {
	m := New(100)

	n, err := m.Insert(10, 1)
	require.NoError(t, err)
	require.Nil(t, n.UserData())

	n.SetUserData("owner")
	m.ForEach(func(got *Node) bool {
		require.Equal(t, "owner", got.UserData())
		return true
	})
}

// Test_RangeMgr_Close tests that Close refuses while nodes are live.
func Test_RangeMgr_Close(t *testing.T) {
	m := New(100)

	n, err := m.Insert(10, 1)
	require.NoError(t, err)

	err = m.Close()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotEmpty), "expected ErrNotEmpty, got: %v", err)

	require.NoError(t, m.Remove(n))
	require.NoError(t, m.Close())
	require.Zero(t, m.FreeBlocks())
}

// Test_RangeMgr_ExactFill tests that the whole range can be consumed and
// that a further request fails.
func Test_RangeMgr_ExactFill(t *testing.T) {
	m := New(256)

	nodes := make([]*Node, 0, 4)
	for range 4 {
		n, err := m.Insert(64, 64)
		require.NoError(t, err)
		nodes = append(nodes, n)
	}
	require.Zero(t, m.FreeBytes())
	require.Zero(t, m.FreeBlocks())

	_, err := m.Insert(1, 1)
	require.ErrorIs(t, err, ErrNoSpace)

	for _, n := range nodes {
		require.NoError(t, m.Remove(n))
	}
	require.Equal(t, uint64(256), m.LargestFree())
	require.NoError(t, m.Validate())
}
