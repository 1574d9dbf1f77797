package pages

import (
	"encoding/binary"

	"selvi/disk"
)

const (
	recordNameSize   = 32
	headerRecordSize = recordNameSize + 4
	maxHeaderRecords = (disk.PageSize - 2) / headerRecordSize
)

// HeaderPage is a view over the well known page at disk.HeaderPageID. It keeps a record
// map from index name to the index's root page id so that an index can be located again
// after the process restarts.
//
// Layout: record count as int16, followed by fixed size records of
// {name [32]byte, rootPageId int32}.
type HeaderPage struct {
	page *RawPage
}

func NewHeaderPage(page *RawPage) *HeaderPage {
	return &HeaderPage{page: page}
}

func (h *HeaderPage) GetRecordCount() int {
	return int(int16(binary.BigEndian.Uint16(h.page.Data)))
}

func (h *HeaderPage) setRecordCount(count int) {
	binary.BigEndian.PutUint16(h.page.Data, uint16(count))
}

// InsertRecord adds a {name, rootPageId} record. Returns false when the name already
// exists or the page is full.
func (h *HeaderPage) InsertRecord(name string, rootPageId disk.PageID) bool {
	if len(name) > recordNameSize {
		return false
	}
	if _, found := h.findRecord(name); found {
		return false
	}

	count := h.GetRecordCount()
	if count >= maxHeaderRecords {
		return false
	}

	h.writeRecord(count, name, rootPageId)
	h.setRecordCount(count + 1)
	return true
}

// UpdateRecord sets the root page id of an existing record. Returns false when the name
// is not registered.
func (h *HeaderPage) UpdateRecord(name string, rootPageId disk.PageID) bool {
	i, found := h.findRecord(name)
	if !found {
		return false
	}

	h.writeRecord(i, name, rootPageId)
	return true
}

// GetRootId returns the root page id registered under name.
func (h *HeaderPage) GetRootId(name string) (disk.PageID, bool) {
	i, found := h.findRecord(name)
	if !found {
		return disk.InvalidPageID, false
	}

	offset := 2 + i*headerRecordSize + recordNameSize
	return disk.PageID(int32(binary.BigEndian.Uint32(h.page.Data[offset:]))), true
}

// DeleteRecord removes the record registered under name.
func (h *HeaderPage) DeleteRecord(name string) bool {
	i, found := h.findRecord(name)
	if !found {
		return false
	}

	count := h.GetRecordCount()
	src := 2 + (i+1)*headerRecordSize
	dst := 2 + i*headerRecordSize
	copy(h.page.Data[dst:], h.page.Data[src:2+count*headerRecordSize])
	h.setRecordCount(count - 1)
	return true
}

func (h *HeaderPage) findRecord(name string) (int, bool) {
	count := h.GetRecordCount()
	for i := 0; i < count; i++ {
		offset := 2 + i*headerRecordSize
		if h.recordName(offset) == name {
			return i, true
		}
	}
	return 0, false
}

func (h *HeaderPage) recordName(offset int) string {
	raw := h.page.Data[offset : offset+recordNameSize]
	end := 0
	for end < recordNameSize && raw[end] != 0 {
		end++
	}
	return string(raw[:end])
}

func (h *HeaderPage) writeRecord(i int, name string, rootPageId disk.PageID) {
	offset := 2 + i*headerRecordSize
	nameDst := h.page.Data[offset : offset+recordNameSize]
	for j := range nameDst {
		nameDst[j] = 0
	}
	copy(nameDst, name)
	binary.BigEndian.PutUint32(h.page.Data[offset+recordNameSize:], uint32(rootPageId))
}
