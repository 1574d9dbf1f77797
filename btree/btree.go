package btree

import (
	"sync"

	"selvi/buffer"
	"selvi/common"
	"selvi/disk"
	"selvi/disk/pages"
	"selvi/transaction"
)

// BTree is a disk backed B+ tree index over fixed size key value pairs. All pages live
// in the buffer pool and are addressed by page id; the tree only ever holds them
// through pins. The root page id is persisted in the header page under the index name
// so the tree can be reopened.
//
// Writers are serialized by the tree latch; readers run concurrently in shared mode.
// The root latch orders access to the root page id before the main latch is taken.
type BTree struct {
	indexName       string
	rootPageID      disk.PageID
	pool            *buffer.BufferPool
	keySerializer   KeySerializer
	valSerializer   ValueSerializer
	leafMaxSize     int
	internalMaxSize int

	latch     sync.RWMutex
	rootLatch sync.RWMutex
}

func NewBTree(indexName string, pool *buffer.BufferPool, keySerializer KeySerializer, valSerializer ValueSerializer, leafMaxSize, internalMaxSize int) *BTree {
	tree := &BTree{
		indexName:       indexName,
		rootPageID:      disk.InvalidPageID,
		pool:            pool,
		keySerializer:   keySerializer,
		valSerializer:   valSerializer,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
	}

	// adopt a previously persisted root if the header page knows this index
	headerPage, err := pool.FetchPage(disk.HeaderPageID)
	common.PanicIfErr(err)
	if root, ok := pages.NewHeaderPage(headerPage).GetRootId(indexName); ok {
		tree.rootPageID = root
	}
	pool.UnpinPage(disk.HeaderPageID, false)

	return tree
}

func (t *BTree) IsEmpty() bool {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootPageID == disk.InvalidPageID
}

// GetValue returns the value stored under key.
func (t *BTree) GetValue(key common.Key) (interface{}, bool) {
	t.rootLatch.RLock()
	if t.rootPageID == disk.InvalidPageID {
		t.rootLatch.RUnlock()
		return nil, false
	}

	t.latch.RLock()
	defer t.latch.RUnlock()
	pageId := t.rootPageID
	t.rootLatch.RUnlock()

	for {
		page, h := t.fetchNode(pageId)
		if h.PageType == leafPageType {
			leaf := t.leafView(page)
			defer t.pool.UnpinPage(pageId, false)
			for idx := leaf.GetSize() - 1; idx >= 0; idx-- {
				cur := leaf.KeyAt(idx)
				if !key.Less(cur) {
					if common.KeyEquals(key, cur) {
						return leaf.ValueAt(idx), true
					}
					return nil, false
				}
			}
			return nil, false
		}

		_, child := t.internalView(page).LookupChild(key)
		t.pool.UnpinPage(pageId, false)
		pageId = child
	}
}

// Insert adds the pair to the tree. Returns false when the key already exists.
func (t *BTree) Insert(txn transaction.Transaction, key common.Key, value interface{}) bool {
	t.rootLatch.Lock()
	defer t.rootLatch.Unlock()
	t.latch.Lock()
	defer t.latch.Unlock()

	if t.rootPageID == disk.InvalidPageID {
		t.startNewTree(txn)
	}

	return t.insert(txn, t.rootPageID, key, value)
}

// startNewTree creates an empty root leaf and registers it in the header page.
func (t *BTree) startNewTree(txn transaction.Transaction) {
	page, err := t.pool.NewPage(txn)
	common.PanicIfErr(err)

	leaf := t.leafView(page)
	leaf.Init(page.GetPageId(), disk.InvalidPageID, t.leafMaxSize)
	t.rootPageID = page.GetPageId()
	t.pool.UnpinPage(page.GetPageId(), true)
	t.updateRootPageID(true)
}

func (t *BTree) insert(txn transaction.Transaction, pageId disk.PageID, key common.Key, value interface{}) bool {
	page, h := t.fetchNode(pageId)

	if h.PageType == leafPageType {
		if !t.leafView(page).Insert(key, value) {
			t.pool.UnpinPage(pageId, false)
			return false
		}
	} else {
		_, child := t.internalView(page).LookupChild(key)
		if !t.insert(txn, child, key, value) {
			t.pool.UnpinPage(pageId, false)
			return false
		}
	}

	if !t.isOverflowed(page) {
		t.pool.UnpinPage(pageId, true)
		return true
	}

	t.split(txn, page)
	return true
}

// split divides an overflown node, pushing a separator into the parent. A fresh root
// is allocated first when the node is the root.
func (t *BTree) split(txn transaction.Transaction, page *pages.RawPage) {
	pageId := page.GetPageId()
	h := readNodeHeader(page)

	if disk.PageID(h.ParentPageID) == disk.InvalidPageID {
		rootPage, err := t.pool.NewPage(txn)
		common.PanicIfErr(err)

		newRoot := t.internalView(rootPage)
		newRoot.Init(rootPage.GetPageId(), disk.InvalidPageID, t.internalMaxSize)
		newRoot.SetChildAt(0, pageId)

		t.setParent(page, rootPage.GetPageId())
		t.rootPageID = rootPage.GetPageId()
		t.pool.UnpinPage(rootPage.GetPageId(), true)
		t.updateRootPageID(false)
		h = readNodeHeader(page)
	}

	parentId := disk.PageID(h.ParentPageID)
	parentPage, _ := t.fetchNode(parentId)
	parent := t.internalView(parentPage)

	siblingPage, err := t.pool.NewPage(txn)
	common.PanicIfErr(err)
	siblingId := siblingPage.GetPageId()

	if h.PageType == leafPageType {
		leaf := t.leafView(page)
		sibling := t.leafView(siblingPage)
		sibling.Init(siblingId, parentId, t.leafMaxSize)

		size, minSize := leaf.GetSize(), leaf.GetMinSize()
		for i := minSize; i < size; i++ {
			sibling.Insert(leaf.KeyAt(i), leaf.ValueAt(i))
		}
		leaf.setSize(minSize)

		sibling.SetNextPageID(leaf.GetNextPageID())
		leaf.SetNextPageID(siblingId)

		parent.InsertEntry(sibling.KeyAt(0), siblingId)
	} else {
		cur := t.internalView(page)
		sibling := t.internalView(siblingPage)
		sibling.Init(siblingId, parentId, t.internalMaxSize)

		size := cur.GetSize()
		mid := size / 2
		sibling.SetChildAt(0, cur.ChildAt(mid))
		for i := mid + 1; i < size; i++ {
			sibling.AppendEntry(cur.KeyAt(i), cur.ChildAt(i))
		}
		separator := cur.KeyAt(mid)
		cur.setSize(mid)

		for i := 0; i < sibling.GetSize(); i++ {
			t.reparent(sibling.ChildAt(i), siblingId)
		}

		parent.InsertEntry(separator, siblingId)
	}

	t.pool.UnpinPage(pageId, true)
	t.pool.UnpinPage(parentId, true)
	t.pool.UnpinPage(siblingId, true)
}

// Remove deletes the pair with the given key. Absent keys are a no-op.
func (t *BTree) Remove(txn transaction.Transaction, key common.Key) {
	t.rootLatch.Lock()
	defer t.rootLatch.Unlock()

	if t.rootPageID == disk.InvalidPageID {
		return
	}

	t.latch.Lock()
	defer t.latch.Unlock()
	t.remove(txn, t.rootPageID, key)
}

func (t *BTree) remove(txn transaction.Transaction, pageId disk.PageID, key common.Key) {
	page, h := t.fetchNode(pageId)

	if h.PageType == leafPageType {
		if !t.leafView(page).Remove(key) {
			t.pool.UnpinPage(pageId, false)
			return
		}
	} else {
		_, child := t.internalView(page).LookupChild(key)
		t.remove(txn, child, key)
	}

	if pageId == t.rootPageID || !t.isUnderflowed(page) {
		t.pool.UnpinPage(pageId, true)
		return
	}

	t.fixUnderflow(txn, page)
}

// fixUnderflow restores the min size invariant of a non root node by borrowing from a
// sibling when one can spare an entry, merging otherwise.
func (t *BTree) fixUnderflow(txn transaction.Transaction, page *pages.RawPage) {
	pageId := page.GetPageId()
	h := readNodeHeader(page)
	isLeaf := h.PageType == leafPageType

	parentId := disk.PageID(h.ParentPageID)
	parentPage, _ := t.fetchNode(parentId)
	parent := t.internalView(parentPage)
	idx := parent.ChildIndex(pageId)

	// borrow from the left sibling
	if idx > 0 {
		leftId := parent.ChildAt(idx - 1)
		leftPage, _ := t.fetchNode(leftId)

		if t.nodeSize(leftPage) > t.nodeMinSize(leftPage) {
			if isLeaf {
				cur, left := t.leafView(page), t.leafView(leftPage)
				last := left.GetSize() - 1
				cur.Insert(left.KeyAt(last), left.ValueAt(last))
				left.setSize(last)
				parent.SetKeyAt(idx, cur.KeyAt(0))
			} else {
				cur, left := t.internalView(page), t.internalView(leftPage)
				last := left.GetSize() - 1
				moved := left.ChildAt(last)
				cur.InsertFront(parent.KeyAt(idx), moved)
				parent.SetKeyAt(idx, left.KeyAt(last))
				left.setSize(last)
				t.reparent(moved, pageId)
			}

			t.pool.UnpinPage(pageId, true)
			t.pool.UnpinPage(parentId, true)
			t.pool.UnpinPage(leftId, true)
			return
		}
		t.pool.UnpinPage(leftId, false)
	}

	// borrow from the right sibling
	if idx < parent.GetSize()-1 {
		rightId := parent.ChildAt(idx + 1)
		rightPage, _ := t.fetchNode(rightId)

		if t.nodeSize(rightPage) > t.nodeMinSize(rightPage) {
			if isLeaf {
				cur, right := t.leafView(page), t.leafView(rightPage)
				cur.Insert(right.KeyAt(0), right.ValueAt(0))
				right.RemoveAt(0)
				parent.SetKeyAt(idx+1, right.KeyAt(0))
			} else {
				cur, right := t.internalView(page), t.internalView(rightPage)
				moved := right.ChildAt(0)
				cur.AppendEntry(parent.KeyAt(idx+1), moved)
				parent.SetKeyAt(idx+1, right.KeyAt(1))
				right.RemoveEntryAt(0)
				t.reparent(moved, pageId)
			}

			t.pool.UnpinPage(pageId, true)
			t.pool.UnpinPage(parentId, true)
			t.pool.UnpinPage(rightId, true)
			return
		}
		t.pool.UnpinPage(rightId, false)
	}

	// the only child of its parent cannot merge; leave it underflowed, the parent
	// will be fixed further up
	if parent.GetSize() == 1 {
		t.pool.UnpinPage(pageId, true)
		t.pool.UnpinPage(parentId, true)
		return
	}

	// merge with the right sibling when there is one, else into the left
	var leftPage, rightPage *pages.RawPage
	var sepIdx int
	if idx < parent.GetSize()-1 {
		leftPage = page
		rp, _ := t.fetchNode(parent.ChildAt(idx + 1))
		rightPage = rp
		sepIdx = idx + 1
	} else {
		lp, _ := t.fetchNode(parent.ChildAt(idx - 1))
		leftPage = lp
		rightPage = page
		sepIdx = idx
	}
	leftId, rightId := leftPage.GetPageId(), rightPage.GetPageId()

	if isLeaf {
		left, right := t.leafView(leftPage), t.leafView(rightPage)
		for i := 0; i < right.GetSize(); i++ {
			left.Insert(right.KeyAt(i), right.ValueAt(i))
		}
		left.SetNextPageID(right.GetNextPageID())
	} else {
		left, right := t.internalView(leftPage), t.internalView(rightPage)
		left.AppendEntry(parent.KeyAt(sepIdx), right.ChildAt(0))
		t.reparent(right.ChildAt(0), leftId)
		for i := 1; i < right.GetSize(); i++ {
			left.AppendEntry(right.KeyAt(i), right.ChildAt(i))
			t.reparent(right.ChildAt(i), leftId)
		}
	}

	parent.RemoveEntryAt(sepIdx)

	t.pool.UnpinPage(leftId, true)
	t.pool.UnpinPage(rightId, true)
	t.pool.UnpinPage(parentId, true)
	t.pool.DeletePage(txn, rightId)
}

func (t *BTree) fetchNode(pageId disk.PageID) (*pages.RawPage, nodeHeader) {
	page, err := t.pool.FetchPage(pageId)
	common.PanicIfErr(err)
	return page, readNodeHeader(page)
}

func (t *BTree) leafView(page *pages.RawPage) *LeafNode {
	return &LeafNode{page: page, keySerializer: t.keySerializer, valSerializer: t.valSerializer}
}

func (t *BTree) internalView(page *pages.RawPage) *InternalNode {
	return &InternalNode{page: page, keySerializer: t.keySerializer}
}

func (t *BTree) isOverflowed(page *pages.RawPage) bool {
	h := readNodeHeader(page)
	if h.PageType == leafPageType {
		return int(h.Size) == int(h.MaxSize)
	}
	return int(h.Size) == int(h.MaxSize)+1
}

func (t *BTree) isUnderflowed(page *pages.RawPage) bool {
	h := readNodeHeader(page)
	if h.PageType == leafPageType {
		return int(h.Size) < t.leafView(page).GetMinSize()
	}
	return int(h.Size) < t.internalView(page).GetMinSize()
}

func (t *BTree) nodeSize(page *pages.RawPage) int {
	return int(readNodeHeader(page).Size)
}

func (t *BTree) nodeMinSize(page *pages.RawPage) int {
	if readNodeHeader(page).PageType == leafPageType {
		return t.leafView(page).GetMinSize()
	}
	return t.internalView(page).GetMinSize()
}

// setParent updates the parent pointer of an already pinned page.
func (t *BTree) setParent(page *pages.RawPage, parentId disk.PageID) {
	h := readNodeHeader(page)
	h.ParentPageID = int32(parentId)
	writeNodeHeader(h, page)
}

// reparent points the child page at a new parent.
func (t *BTree) reparent(childId, parentId disk.PageID) {
	childPage, _ := t.fetchNode(childId)
	t.setParent(childPage, parentId)
	t.pool.UnpinPage(childId, true)
}

// updateRootPageID persists the root page id through the header page. insertRecord
// registers the index name for the first time.
func (t *BTree) updateRootPageID(insertRecord bool) {
	headerPage, err := t.pool.FetchPage(disk.HeaderPageID)
	common.PanicIfErr(err)

	hp := pages.NewHeaderPage(headerPage)
	if insertRecord {
		if !hp.InsertRecord(t.indexName, t.rootPageID) {
			hp.UpdateRecord(t.indexName, t.rootPageID)
		}
	} else {
		if !hp.UpdateRecord(t.indexName, t.rootPageID) {
			hp.InsertRecord(t.indexName, t.rootPageID)
		}
	}
	t.pool.UnpinPage(disk.HeaderPageID, true)
}
