package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvict_Should_Prefer_Frames_With_Partial_History(t *testing.T) {
	r := NewLRUKReplacer(7, 2)

	r.RecordAccess(1)
	r.RecordAccess(2)
	r.RecordAccess(3)
	r.RecordAccess(4)
	r.RecordAccess(1)
	r.RecordAccess(2)
	for _, f := range []int{1, 2, 3, 4} {
		r.SetEvictable(f, true)
	}

	// 3 and 4 have a single access, their backward K-distance is infinite; the
	// earlier first access goes first
	f, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, 3, f)

	f, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, 4, f)

	// among full histories frame 1's second to last access is older
	f, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, 1, f)

	f, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, 2, f)

	_, ok = r.Evict()
	assert.False(t, ok)
}

func TestEvict_Should_Order_Full_Histories_By_Kth_Last_Access(t *testing.T) {
	r := NewLRUKReplacer(4, 2)

	// frame 0 finishes its K accesses before frame 1 starts
	r.RecordAccess(0)
	r.RecordAccess(0)
	r.RecordAccess(1)
	r.RecordAccess(1)
	r.SetEvictable(0, true)
	r.SetEvictable(1, true)

	f, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, 0, f)

	f, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, 1, f)
}

func TestSetEvictable_Should_Track_Size(t *testing.T) {
	r := NewLRUKReplacer(4, 2)

	r.RecordAccess(0)
	r.RecordAccess(1)
	assert.Equal(t, 0, r.Size())

	r.SetEvictable(0, true)
	r.SetEvictable(1, true)
	assert.Equal(t, 2, r.Size())

	// repeating the same state is not double counted
	r.SetEvictable(1, true)
	assert.Equal(t, 2, r.Size())

	r.SetEvictable(0, false)
	assert.Equal(t, 1, r.Size())

	// an unallocated frame is ignored
	r.SetEvictable(3, true)
	assert.Equal(t, 1, r.Size())
}

func TestEvicted_Frame_Should_Restart_With_Empty_History(t *testing.T) {
	r := NewLRUKReplacer(4, 2)

	r.RecordAccess(0)
	r.RecordAccess(0)
	r.RecordAccess(1)
	r.SetEvictable(0, true)
	r.SetEvictable(1, true)

	// frame 1 has the partial history and goes first
	f, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, 1, f)

	// a fresh access on the evicted frame makes it the youngest single access frame
	r.RecordAccess(1)
	r.SetEvictable(1, true)

	f, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, 1, f)

	f, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, 0, f)
}

func TestRemove_Should_Drop_Evictable_Frame(t *testing.T) {
	r := NewLRUKReplacer(4, 2)

	r.RecordAccess(0)
	r.SetEvictable(0, true)
	require.Equal(t, 1, r.Size())

	r.Remove(0)
	assert.Equal(t, 0, r.Size())

	_, ok := r.Evict()
	assert.False(t, ok)

	// removing an unallocated frame is a no-op
	r.Remove(0)
	assert.Equal(t, 0, r.Size())
}

func TestRemove_Should_Panic_When_Frame_Is_Not_Evictable(t *testing.T) {
	r := NewLRUKReplacer(4, 2)
	r.RecordAccess(0)

	assert.Panics(t, func() { r.Remove(0) })
}

func TestRecordAccess_Should_Panic_When_Frame_Is_Out_Of_Range(t *testing.T) {
	r := NewLRUKReplacer(4, 2)

	assert.Panics(t, func() { r.RecordAccess(4) })
	assert.Panics(t, func() { r.SetEvictable(-1, true) })
}
