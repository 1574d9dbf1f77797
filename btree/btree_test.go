package btree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selvi/buffer"
	"selvi/common"
	"selvi/disk"
	"selvi/transaction"
)

// newTestPool builds a memory backed pool and allocates the header page, which always
// becomes page 0 on a fresh database.
func newTestPool(t *testing.T, poolSize int) *buffer.BufferPool {
	t.Helper()

	pool := buffer.NewBufferPoolWithDM(poolSize, 2, disk.NewMemDiskManager(), nil)
	p, err := pool.NewPage(transaction.TxnNoop())
	require.NoError(t, err)
	require.Equal(t, disk.HeaderPageID, p.GetPageId())
	require.True(t, pool.UnpinPage(p.GetPageId(), true))
	return pool
}

func newIntTree(t *testing.T, pool *buffer.BufferPool, leafMaxSize, internalMaxSize int) *BTree {
	t.Helper()
	return NewBTree("test_index", pool, &Int64KeySerializer{}, &SlotPointerValueSerializer{}, leafMaxSize, internalMaxSize)
}

func slotPtr(i int) SlotPointer {
	return SlotPointer{PageID: disk.PageID(i), SlotIdx: int16(i % 100)}
}

// checkTreeInvariants walks the whole tree verifying node sizes, key order, parent
// pointers and the leaf chain.
func checkTreeInvariants(t *testing.T, tree *BTree) {
	t.Helper()

	if tree.IsEmpty() {
		return
	}
	checkNode(t, tree, tree.rootPageID, disk.InvalidPageID, 0, nil, nil)

	// leaf chain must be strictly ascending end to end
	it := tree.Begin()
	var prev common.Key
	for {
		key, _, ok := it.Next()
		if !ok {
			break
		}
		if prev != nil {
			assert.True(t, prev.Less(key), "leaf chain is not ascending: %v before %v", prev, key)
		}
		prev = key
	}
}

// checkNode verifies one node and recurses. parentSize is 0 for the root. An only
// child of a single pointer parent is exempt from the min size rule: without a root
// collapse step the chain under a shrunken root legitimately stays thin.
func checkNode(t *testing.T, tree *BTree, pageId, parentId disk.PageID, parentSize int, lower, upper common.Key) {
	t.Helper()

	page, h := tree.fetchNode(pageId)
	defer tree.pool.UnpinPage(pageId, false)

	isRoot := pageId == tree.rootPageID
	exemptMin := isRoot || parentSize == 1
	assert.Equal(t, parentId, disk.PageID(h.ParentPageID), "page %v has a stale parent pointer", pageId)

	if h.PageType == leafPageType {
		leaf := tree.leafView(page)
		if !exemptMin {
			assert.GreaterOrEqual(t, leaf.GetSize(), leaf.GetMinSize(), "leaf %v underflowed", pageId)
		}
		assert.Less(t, leaf.GetSize(), leaf.GetMaxSize(), "leaf %v overflowed", pageId)
		for i := 0; i < leaf.GetSize(); i++ {
			key := leaf.KeyAt(i)
			if i > 0 {
				assert.True(t, leaf.KeyAt(i-1).Less(key), "leaf %v keys out of order", pageId)
			}
			if lower != nil {
				assert.False(t, key.Less(lower), "leaf %v key %v below bound %v", pageId, key, lower)
			}
			if upper != nil {
				assert.True(t, key.Less(upper), "leaf %v key %v above bound %v", pageId, key, upper)
			}
		}
		return
	}

	internal := tree.internalView(page)
	size := internal.GetSize()
	if !exemptMin {
		assert.GreaterOrEqual(t, size, internal.GetMinSize(), "internal %v underflowed", pageId)
	}
	assert.LessOrEqual(t, size, internal.GetMaxSize(), "internal %v overflowed", pageId)

	for i := 0; i < size; i++ {
		childLower := lower
		childUpper := upper
		if i > 0 {
			childLower = internal.KeyAt(i)
			if i > 1 {
				assert.True(t, internal.KeyAt(i-1).Less(internal.KeyAt(i)), "internal %v keys out of order", pageId)
			}
		}
		if i+1 < size {
			childUpper = internal.KeyAt(i + 1)
		}
		checkNode(t, tree, internal.ChildAt(i), pageId, size, childLower, childUpper)
	}
}

func TestInsert_Should_Split_Leaves_And_Grow_An_Internal_Root(t *testing.T) {
	pool := newTestPool(t, 16)
	tree := newIntTree(t, pool, 3, 3)
	txn := transaction.TxnNoop()

	require.True(t, tree.IsEmpty())
	for i := 1; i <= 7; i++ {
		require.True(t, tree.Insert(txn, Int64Key(i), slotPtr(i)))
	}
	require.False(t, tree.IsEmpty())

	// the root must have split into an internal node by now
	rootPage, h := tree.fetchNode(tree.rootPageID)
	assert.Equal(t, internalPageType, h.PageType)
	pool.UnpinPage(rootPage.GetPageId(), false)

	// iteration yields exactly 1..7 and every leaf holds 1 or 2 entries
	it := tree.Begin()
	want := int64(1)
	for {
		key, val, ok := it.Next()
		if !ok {
			break
		}
		assert.Equal(t, Int64Key(want), key)
		assert.Equal(t, slotPtr(int(want)), val)
		want++
	}
	assert.Equal(t, int64(8), want)

	for _, size := range leafSizes(t, tree) {
		assert.GreaterOrEqual(t, size, 1)
		assert.LessOrEqual(t, size, 2)
	}

	checkTreeInvariants(t, tree)
	assert.Zero(t, pool.PinnedFrameCount())
}

// leafSizes walks the sibling chain and collects every leaf's entry count.
func leafSizes(t *testing.T, tree *BTree) []int {
	t.Helper()

	pageId := tree.Begin().curr
	sizes := make([]int, 0)
	for pageId != disk.InvalidPageID {
		page, err := tree.pool.FetchPage(pageId)
		require.NoError(t, err)
		leaf := tree.leafView(page)
		sizes = append(sizes, leaf.GetSize())
		next := leaf.GetNextPageID()
		tree.pool.UnpinPage(pageId, false)
		pageId = next
	}
	return sizes
}

func TestInsert_Should_Reject_Duplicate_Keys(t *testing.T) {
	pool := newTestPool(t, 16)
	tree := newIntTree(t, pool, 4, 4)
	txn := transaction.TxnNoop()

	require.True(t, tree.Insert(txn, Int64Key(10), slotPtr(10)))
	assert.False(t, tree.Insert(txn, Int64Key(10), slotPtr(99)))

	val, ok := tree.GetValue(Int64Key(10))
	require.True(t, ok)
	assert.Equal(t, slotPtr(10), val)
	assert.Zero(t, pool.PinnedFrameCount())
}

func TestEvery_Inserted_Key_Should_Be_Found(t *testing.T) {
	pool := newTestPool(t, 64)
	tree := newIntTree(t, pool, 10, 10)
	txn := transaction.TxnNoop()

	n := 1000
	for _, i := range rand.Perm(n) {
		require.True(t, tree.Insert(txn, Int64Key(i), slotPtr(i)))
	}

	for i := 0; i < n; i++ {
		val, ok := tree.GetValue(Int64Key(i))
		require.True(t, ok, "key %v is lost", i)
		assert.Equal(t, slotPtr(i), val)
	}

	_, ok := tree.GetValue(Int64Key(n))
	assert.False(t, ok)

	checkTreeInvariants(t, tree)
	assert.Zero(t, pool.PinnedFrameCount())
}

func TestGetValue_On_Empty_Tree_Should_Return_False(t *testing.T) {
	pool := newTestPool(t, 16)
	tree := newIntTree(t, pool, 3, 3)

	_, ok := tree.GetValue(Int64Key(1))
	assert.False(t, ok)
	assert.True(t, tree.Begin().IsEnd())
}

func TestTree_Should_Be_Reopened_Through_The_Header_Page(t *testing.T) {
	dm := disk.NewMemDiskManager()

	pool := buffer.NewBufferPoolWithDM(16, 2, dm, nil)
	p, err := pool.NewPage(transaction.TxnNoop())
	require.NoError(t, err)
	require.Equal(t, disk.HeaderPageID, p.GetPageId())
	require.True(t, pool.UnpinPage(p.GetPageId(), true))

	tree := NewBTree("orders_pk", pool, &Int64KeySerializer{}, &SlotPointerValueSerializer{}, 4, 4)
	txn := transaction.TxnNoop()
	for i := 0; i < 100; i++ {
		require.True(t, tree.Insert(txn, Int64Key(i), slotPtr(i)))
	}
	pool.FlushAll()

	// a second pool over the same disk sees the persisted root
	pool2 := buffer.NewBufferPoolWithDM(16, 2, dm, nil)
	tree2 := NewBTree("orders_pk", pool2, &Int64KeySerializer{}, &SlotPointerValueSerializer{}, 4, 4)

	require.False(t, tree2.IsEmpty())
	for i := 0; i < 100; i++ {
		val, ok := tree2.GetValue(Int64Key(i))
		require.True(t, ok, "key %v is lost after reopen", i)
		assert.Equal(t, slotPtr(i), val)
	}
}

func TestStringKey_Tree_Should_Order_Lexicographically(t *testing.T) {
	pool := newTestPool(t, 32)
	tree := NewBTree("names_idx", pool, &StringKeySerializer{Len: 16}, &SlotPointerValueSerializer{}, 4, 4)
	txn := transaction.TxnNoop()

	words := []string{"pear", "apple", "fig", "melon", "banana", "quince", "cherry", "grape"}
	for i, w := range words {
		require.True(t, tree.Insert(txn, StringKey(w), slotPtr(i)))
	}

	it := tree.Begin()
	got := make([]string, 0)
	for {
		key, _, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(key.(StringKey)))
	}
	assert.Equal(t, []string{"apple", "banana", "cherry", "fig", "grape", "melon", "pear", "quince"}, got)
	checkTreeInvariants(t, tree)
}
