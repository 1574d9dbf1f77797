package btree

import (
	"selvi/common"
	"selvi/disk"
)

type Int64Key int64

func (k Int64Key) Less(than common.Key) bool {
	return k < than.(Int64Key)
}

type StringKey string

func (k StringKey) String() string {
	return string(k)
}

func (k StringKey) Less(than common.Key) bool {
	return k < than.(StringKey)
}

// SlotPointer locates a tuple in a table heap page. It is the leaf value type of
// secondary indexes.
type SlotPointer struct {
	PageID  disk.PageID
	SlotIdx int16
}
