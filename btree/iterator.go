package btree

import (
	"selvi/common"
	"selvi/disk"
)

// TreeIterator walks the leaf sibling chain in ascending key order. It holds no pins
// between calls; every step fetches and unpins the leaf it is positioned on. The end
// of the chain is an iterator whose page id is invalid.
type TreeIterator struct {
	tree    *BTree
	curr    disk.PageID
	currIdx int
}

// Begin positions an iterator at the smallest key of the tree.
func (t *BTree) Begin() *TreeIterator {
	t.rootLatch.RLock()
	if t.rootPageID == disk.InvalidPageID {
		t.rootLatch.RUnlock()
		return t.End()
	}

	t.latch.RLock()
	defer t.latch.RUnlock()
	pageId := t.rootPageID
	t.rootLatch.RUnlock()

	for {
		page, h := t.fetchNode(pageId)
		if h.PageType == leafPageType {
			t.pool.UnpinPage(pageId, false)
			return &TreeIterator{tree: t, curr: pageId, currIdx: 0}
		}

		child := t.internalView(page).ChildAt(0)
		t.pool.UnpinPage(pageId, false)
		pageId = child
	}
}

// BeginAt positions an iterator at the first entry whose key is >= key.
func (t *BTree) BeginAt(key common.Key) *TreeIterator {
	t.rootLatch.RLock()
	if t.rootPageID == disk.InvalidPageID {
		t.rootLatch.RUnlock()
		return t.End()
	}

	t.latch.RLock()
	defer t.latch.RUnlock()
	pageId := t.rootPageID
	t.rootLatch.RUnlock()

	for {
		page, h := t.fetchNode(pageId)
		if h.PageType == leafPageType {
			leaf := t.leafView(page)
			size := leaf.GetSize()
			idx := 0
			for ; idx < size; idx++ {
				if !leaf.KeyAt(idx).Less(key) {
					break
				}
			}
			next := leaf.GetNextPageID()
			t.pool.UnpinPage(pageId, false)

			if idx < size {
				return &TreeIterator{tree: t, curr: pageId, currIdx: idx}
			}
			// every key in this leaf is smaller, the target position is the start
			// of the next leaf
			if next == disk.InvalidPageID {
				return t.End()
			}
			return &TreeIterator{tree: t, curr: next, currIdx: 0}
		}

		_, child := t.internalView(page).LookupChild(key)
		t.pool.UnpinPage(pageId, false)
		pageId = child
	}
}

// End returns the iterator past the last entry.
func (t *BTree) End() *TreeIterator {
	return &TreeIterator{tree: t, curr: disk.InvalidPageID, currIdx: 0}
}

func (it *TreeIterator) IsEnd() bool {
	return it.curr == disk.InvalidPageID
}

// Next returns the entry the iterator is on and advances it. ok is false past the end.
func (it *TreeIterator) Next() (key common.Key, value interface{}, ok bool) {
	for {
		if it.curr == disk.InvalidPageID {
			return nil, nil, false
		}

		page, err := it.tree.pool.FetchPage(it.curr)
		common.PanicIfErr(err)
		leaf := it.tree.leafView(page)

		if it.currIdx >= leaf.GetSize() {
			next := leaf.GetNextPageID()
			it.tree.pool.UnpinPage(it.curr, false)
			it.curr = next
			it.currIdx = 0
			continue
		}

		key = leaf.KeyAt(it.currIdx)
		value = leaf.ValueAt(it.currIdx)
		it.tree.pool.UnpinPage(it.curr, false)
		it.currIdx++
		return key, value, true
	}
}
