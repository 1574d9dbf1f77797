package disk

import (
	"fmt"
	"sync"
)

var _ IDiskManager = &MemManager{}

// MemManager keeps pages in memory. It exists so that pool and tree tests do not have
// to touch the file system.
type MemManager struct {
	pages     map[PageID][]byte
	pageCount int
	mu        sync.Mutex
}

func NewMemDiskManager() *MemManager {
	return &MemManager{
		pages: map[PageID][]byte{},
	}
}

func (m *MemManager) ReadPage(pageId PageID, dest []byte) error {
	if len(dest) != PageSize {
		return fmt.Errorf("dest is not page sized: %v", len(dest))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pages[pageId]
	if !ok {
		for i := range dest {
			dest[i] = 0
		}
		return nil
	}

	copy(dest, p)
	return nil
}

func (m *MemManager) WritePage(data []byte, pageId PageID) error {
	if len(data) != PageSize {
		return fmt.Errorf("data is not page sized: %v", len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pages[pageId]
	if !ok {
		p = make([]byte, PageSize)
		m.pages[pageId] = p
	}
	copy(p, data)
	if count := int(pageId) + 1; count > m.pageCount {
		m.pageCount = count
	}
	return nil
}

func (m *MemManager) PageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageCount
}

func (m *MemManager) Close() error {
	return nil
}
