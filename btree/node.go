package btree

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"selvi/common"
	"selvi/disk"
	"selvi/disk/pages"
)

const (
	leafPageType     int8 = 1
	internalPageType int8 = 2

	nodeHeaderSize = 17
)

// nodeHeader is the common header at the start of every tree page. NextPageID is only
// meaningful for leaves, where it links the sibling chain in ascending key order.
type nodeHeader struct {
	PageType     int8
	Size         int16
	MaxSize      int16
	ParentPageID int32
	PageID       int32
	NextPageID   int32
}

func readNodeHeader(page *pages.RawPage) nodeHeader {
	reader := bytes.NewReader(page.Data)
	h := nodeHeader{}
	common.PanicIfErr(binary.Read(reader, binary.BigEndian, &h))
	return h
}

func writeNodeHeader(h nodeHeader, page *pages.RawPage) {
	buf := bytes.Buffer{}
	common.PanicIfErr(binary.Write(&buf, binary.BigEndian, h))
	copy(page.Data, buf.Bytes())
}

// LeafNode interprets a pinned page as a leaf holding an ordered array of fixed size
// key value pairs.
type LeafNode struct {
	page          *pages.RawPage
	keySerializer KeySerializer
	valSerializer ValueSerializer
}

func (n *LeafNode) Init(pageId, parentId disk.PageID, maxSize int) {
	writeNodeHeader(nodeHeader{
		PageType:     leafPageType,
		Size:         0,
		MaxSize:      int16(maxSize),
		ParentPageID: int32(parentId),
		PageID:       int32(pageId),
		NextPageID:   int32(disk.InvalidPageID),
	}, n.page)
}

func (n *LeafNode) GetPageId() disk.PageID {
	return disk.PageID(readNodeHeader(n.page).PageID)
}

func (n *LeafNode) GetSize() int {
	return int(readNodeHeader(n.page).Size)
}

func (n *LeafNode) setSize(size int) {
	h := readNodeHeader(n.page)
	h.Size = int16(size)
	writeNodeHeader(h, n.page)
}

func (n *LeafNode) GetMaxSize() int {
	return int(readNodeHeader(n.page).MaxSize)
}

// GetMinSize is the fewest entries a non root leaf may hold.
func (n *LeafNode) GetMinSize() int {
	return n.GetMaxSize() / 2
}

func (n *LeafNode) GetParent() disk.PageID {
	return disk.PageID(readNodeHeader(n.page).ParentPageID)
}

func (n *LeafNode) SetParent(pageId disk.PageID) {
	h := readNodeHeader(n.page)
	h.ParentPageID = int32(pageId)
	writeNodeHeader(h, n.page)
}

func (n *LeafNode) GetNextPageID() disk.PageID {
	return disk.PageID(readNodeHeader(n.page).NextPageID)
}

func (n *LeafNode) SetNextPageID(pageId disk.PageID) {
	h := readNodeHeader(n.page)
	h.NextPageID = int32(pageId)
	writeNodeHeader(h, n.page)
}

func (n *LeafNode) entrySize() int {
	return n.keySerializer.Size() + n.valSerializer.Size()
}

func (n *LeafNode) entryOffset(idx int) int {
	return nodeHeaderSize + idx*n.entrySize()
}

func (n *LeafNode) KeyAt(idx int) common.Key {
	offset := n.entryOffset(idx)
	key, err := n.keySerializer.Deserialize(n.page.Data[offset : offset+n.keySerializer.Size()])
	common.PanicIfErr(err)
	return key
}

func (n *LeafNode) ValueAt(idx int) interface{} {
	offset := n.entryOffset(idx) + n.keySerializer.Size()
	val, err := n.valSerializer.Deserialize(n.page.Data[offset : offset+n.valSerializer.Size()])
	common.PanicIfErr(err)
	return val
}

func (n *LeafNode) setEntryAt(idx int, key common.Key, val interface{}) {
	keyRaw, err := n.keySerializer.Serialize(key)
	common.PanicIfErr(err)
	valRaw, err := n.valSerializer.Serialize(val)
	common.PanicIfErr(err)

	offset := n.entryOffset(idx)
	copy(n.page.Data[offset:], keyRaw)
	copy(n.page.Data[offset+n.keySerializer.Size():], valRaw)
}

// Insert puts the pair at its sorted position. Returns false on a duplicate key.
func (n *LeafNode) Insert(key common.Key, val interface{}) bool {
	size := n.GetSize()
	idx := 0
	for ; idx < size; idx++ {
		cur := n.KeyAt(idx)
		if common.KeyEquals(key, cur) {
			return false
		}
		if key.Less(cur) {
			break
		}
	}

	n.shiftRightAt(idx)
	n.setEntryAt(idx, key, val)
	n.setSize(size + 1)
	return true
}

// Remove deletes the pair with the given key. Returns false when the key is absent.
func (n *LeafNode) Remove(key common.Key) bool {
	size := n.GetSize()
	for idx := 0; idx < size; idx++ {
		if common.KeyEquals(key, n.KeyAt(idx)) {
			n.RemoveAt(idx)
			return true
		}
	}
	return false
}

func (n *LeafNode) RemoveAt(idx int) {
	size := n.GetSize()
	data := n.page.Data
	copy(data[n.entryOffset(idx):], data[n.entryOffset(idx+1):n.entryOffset(size)])
	n.setSize(size - 1)
}

// shiftRightAt opens a hole at idx by moving entries [idx, size) one slot right.
func (n *LeafNode) shiftRightAt(idx int) {
	size := n.GetSize()
	data := n.page.Data
	copy(data[n.entryOffset(idx+1):n.entryOffset(size+1)], data[n.entryOffset(idx):n.entryOffset(size)])
}

// InternalNode interprets a pinned page as an internal node holding an ordered array
// of key and child page id pairs. The key at slot 0 is unused; only its child pointer
// is meaningful.
type InternalNode struct {
	page          *pages.RawPage
	keySerializer KeySerializer
}

func (n *InternalNode) Init(pageId, parentId disk.PageID, maxSize int) {
	writeNodeHeader(nodeHeader{
		PageType:     internalPageType,
		Size:         1,
		MaxSize:      int16(maxSize),
		ParentPageID: int32(parentId),
		PageID:       int32(pageId),
		NextPageID:   int32(disk.InvalidPageID),
	}, n.page)
}

func (n *InternalNode) GetPageId() disk.PageID {
	return disk.PageID(readNodeHeader(n.page).PageID)
}

func (n *InternalNode) GetSize() int {
	return int(readNodeHeader(n.page).Size)
}

func (n *InternalNode) setSize(size int) {
	h := readNodeHeader(n.page)
	h.Size = int16(size)
	writeNodeHeader(h, n.page)
}

func (n *InternalNode) GetMaxSize() int {
	return int(readNodeHeader(n.page).MaxSize)
}

// GetMinSize is the fewest child pointers a non root internal node may hold.
func (n *InternalNode) GetMinSize() int {
	return (n.GetMaxSize() + 1) / 2
}

func (n *InternalNode) GetParent() disk.PageID {
	return disk.PageID(readNodeHeader(n.page).ParentPageID)
}

func (n *InternalNode) SetParent(pageId disk.PageID) {
	h := readNodeHeader(n.page)
	h.ParentPageID = int32(pageId)
	writeNodeHeader(h, n.page)
}

func (n *InternalNode) entrySize() int {
	return n.keySerializer.Size() + 4
}

func (n *InternalNode) entryOffset(idx int) int {
	return nodeHeaderSize + idx*n.entrySize()
}

func (n *InternalNode) KeyAt(idx int) common.Key {
	offset := n.entryOffset(idx)
	key, err := n.keySerializer.Deserialize(n.page.Data[offset : offset+n.keySerializer.Size()])
	common.PanicIfErr(err)
	return key
}

func (n *InternalNode) SetKeyAt(idx int, key common.Key) {
	raw, err := n.keySerializer.Serialize(key)
	common.PanicIfErr(err)
	copy(n.page.Data[n.entryOffset(idx):], raw)
}

func (n *InternalNode) ChildAt(idx int) disk.PageID {
	offset := n.entryOffset(idx) + n.keySerializer.Size()
	return disk.PageID(int32(binary.BigEndian.Uint32(n.page.Data[offset:])))
}

func (n *InternalNode) SetChildAt(idx int, pageId disk.PageID) {
	offset := n.entryOffset(idx) + n.keySerializer.Size()
	binary.BigEndian.PutUint32(n.page.Data[offset:], uint32(pageId))
}

// LookupChild returns the slot whose subtree may contain key: the largest i with
// KeyAt(i) <= key, slot 0 acting as minus infinity.
func (n *InternalNode) LookupChild(key common.Key) (int, disk.PageID) {
	for idx := n.GetSize() - 1; idx >= 1; idx-- {
		if !key.Less(n.KeyAt(idx)) {
			return idx, n.ChildAt(idx)
		}
	}
	return 0, n.ChildAt(0)
}

// ChildIndex returns the slot pointing at the given child page.
func (n *InternalNode) ChildIndex(pageId disk.PageID) int {
	for idx := 0; idx < n.GetSize(); idx++ {
		if n.ChildAt(idx) == pageId {
			return idx
		}
	}
	panic(fmt.Sprintf("page %v is not a child of page %v", pageId, n.GetPageId()))
}

// InsertEntry puts the separator and child after the last slot whose key is <= key.
func (n *InternalNode) InsertEntry(key common.Key, child disk.PageID) {
	size := n.GetSize()
	idx := size - 1
	for ; idx >= 1; idx-- {
		if !key.Less(n.KeyAt(idx)) {
			break
		}
	}
	if idx < 1 {
		idx = 0
	}

	n.shiftRightAt(idx + 1)
	n.SetKeyAt(idx+1, key)
	n.SetChildAt(idx+1, child)
	n.setSize(size + 1)
}

// InsertFront makes child the new slot 0 pointer; the old slot 0 child moves to slot 1
// under the given separator key.
func (n *InternalNode) InsertFront(separator common.Key, child disk.PageID) {
	size := n.GetSize()
	n.shiftRightAt(0)
	n.SetChildAt(0, child)
	n.SetKeyAt(1, separator)
	n.setSize(size + 1)
}

// AppendEntry puts the separator and child at the end.
func (n *InternalNode) AppendEntry(key common.Key, child disk.PageID) {
	size := n.GetSize()
	n.SetKeyAt(size, key)
	n.SetChildAt(size, child)
	n.setSize(size + 1)
}

func (n *InternalNode) RemoveEntryAt(idx int) {
	size := n.GetSize()
	data := n.page.Data
	copy(data[n.entryOffset(idx):], data[n.entryOffset(idx+1):n.entryOffset(size)])
	n.setSize(size - 1)
}

func (n *InternalNode) shiftRightAt(idx int) {
	size := n.GetSize()
	data := n.page.Data
	copy(data[n.entryOffset(idx+1):n.entryOffset(size+1)], data[n.entryOffset(idx):n.entryOffset(size)])
}
