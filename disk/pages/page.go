package pages

import (
	"selvi/disk"
)

// RawPage is a frame's view of a physical page: the page bytes plus the bookkeeping
// the buffer pool needs. The pool guards each frame with its own lock; RawPage itself
// carries no synchronization.
type RawPage struct {
	pageId   disk.PageID
	isDirty  bool
	pinCount int
	Data     []byte
}

func NewRawPage(pageId disk.PageID) *RawPage {
	return &RawPage{
		pageId: pageId,
		Data:   make([]byte, disk.PageSize),
	}
}

func (p *RawPage) IncrPinCount() {
	p.pinCount++
}

func (p *RawPage) DecrPinCount() {
	p.pinCount--
}

func (p *RawPage) GetData() []byte {
	return p.Data
}

func (p *RawPage) GetPageId() disk.PageID {
	return p.pageId
}

// SetPageId rebinds the frame to another physical page. Only the buffer pool does this,
// while it holds the frame exclusively.
func (p *RawPage) SetPageId(pageId disk.PageID) {
	p.pageId = pageId
}

func (p *RawPage) GetPinCount() int {
	return p.pinCount
}

func (p *RawPage) SetPinCount(count int) {
	p.pinCount = count
}

func (p *RawPage) IsDirty() bool {
	return p.isDirty
}

func (p *RawPage) SetDirty() {
	p.isDirty = true
}

func (p *RawPage) SetClean() {
	p.isDirty = false
}

// ResetMemory zeroes the frame before it is bound to a new page.
func (p *RawPage) ResetMemory() {
	for i := range p.Data {
		p.Data[i] = 0
	}
}
