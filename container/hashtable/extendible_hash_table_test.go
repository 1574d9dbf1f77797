package hashtable

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsert_Should_Replace_Value_When_Key_Exists(t *testing.T) {
	table := NewExtendibleHashTable[int, string](4, IntHasher[int])

	table.Insert(1, "a")
	table.Insert(1, "b")

	val, ok := table.Find(1)
	assert.True(t, ok)
	assert.Equal(t, "b", val)
	assert.Equal(t, 1, table.Len())
}

func TestFind_Should_Return_False_When_Key_Is_Absent(t *testing.T) {
	table := NewExtendibleHashTable[int, int](4, IntHasher[int])

	table.Insert(1, 10)

	_, ok := table.Find(2)
	assert.False(t, ok)
}

func TestRemove_Should_Delete_Key(t *testing.T) {
	table := NewExtendibleHashTable[int, int](4, IntHasher[int])

	table.Insert(1, 10)
	table.Insert(2, 20)

	assert.True(t, table.Remove(1))
	assert.False(t, table.Remove(1))

	_, ok := table.Find(1)
	assert.False(t, ok)

	val, ok := table.Find(2)
	assert.True(t, ok)
	assert.Equal(t, 20, val)
}

func TestInsert_Should_Split_Recursively_When_Low_Bits_Collide(t *testing.T) {
	// low 4 bits of every key are zero, so splits have to recurse past depth 4
	// before the first three keys can spread out
	table := NewExtendibleHashTable[int, int](2, IntHasher[int])

	table.Insert(0, 0)
	table.Insert(16, 160)
	table.Insert(32, 320)

	assert.GreaterOrEqual(t, table.GlobalDepth(), 3)

	table.Insert(48, 480)

	val, ok := table.Find(32)
	require.True(t, ok)
	assert.Equal(t, 320, val)
	assert.GreaterOrEqual(t, table.NumBuckets(), 4)

	for _, k := range []int{0, 16, 32, 48} {
		v, ok := table.Find(k)
		require.True(t, ok, "key %v is lost", k)
		assert.Equal(t, k*10, v)
	}
}

func TestDirectory_Invariants_Should_Hold_After_Many_Inserts(t *testing.T) {
	table := NewExtendibleHashTable[int, int](4, IntHasher[int])

	inserted := map[int]int{}
	for i := 0; i < 1000; i++ {
		k := rand.Intn(10000)
		table.Insert(k, i)
		inserted[k] = i
	}

	assert.Equal(t, 1<<table.GlobalDepth(), len(table.dir))
	for i := range table.dir {
		assert.LessOrEqual(t, table.LocalDepth(i), table.GlobalDepth())
	}

	for k, v := range inserted {
		got, ok := table.Find(k)
		require.True(t, ok, "key %v is lost", k)
		assert.Equal(t, v, got)
	}
	assert.Equal(t, len(inserted), table.Len())
}

func TestSlots_Sharing_A_Bucket_Should_Agree_On_Low_Bits(t *testing.T) {
	table := NewExtendibleHashTable[int, int](2, IntHasher[int])

	for i := 0; i < 256; i++ {
		table.Insert(i, i)
	}

	for i := range table.dir {
		b := table.dir[i]
		mask := 1<<b.depth - 1
		for j := range table.dir {
			if table.dir[j] == b {
				assert.Equal(t, i&mask, j&mask, "slots %v and %v share a bucket but differ below its depth", i, j)
			}
		}
	}
}

func TestConcurrent_Inserts_Should_All_Be_Found(t *testing.T) {
	table := NewExtendibleHashTable[int, string](4, IntHasher[int])

	workers := 8
	perWorker := 200
	wg := sync.WaitGroup{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				k := w*perWorker + i
				table.Insert(k, fmt.Sprint(k))
			}
		}(w)
	}
	wg.Wait()

	for k := 0; k < workers*perWorker; k++ {
		v, ok := table.Find(k)
		require.True(t, ok, "key %v is lost", k)
		assert.Equal(t, fmt.Sprint(k), v)
	}
}
