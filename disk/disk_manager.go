package disk

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
)

// PageID addresses a physical page in the db file. Negative values are sentinels.
type PageID int32

const (
	// InvalidPageID marks an unbound frame or a missing sibling/parent link.
	InvalidPageID PageID = -1

	// HeaderPageID is the well known page that keeps the index name to root
	// page id record map.
	HeaderPageID PageID = 0
)

const PageSize int = 4096

// FlushInstantly should normally be set to true. If it is false then data might be lost even after a successful
// write operation when power loss occurs before os flushes its io buffers. But when it is false, tests run a lot
// faster thanks to io scheduling of os. Setting it to false does not change the validity of any tests unless a
// test is simulating a power loss.
const FlushInstantly bool = false

type IDiskManager interface {
	// ReadPage reads page with the given id into dest. Reading a page that was never
	// written yields a zero filled dest.
	ReadPage(pageId PageID, dest []byte) error

	// WritePage writes data, which must be exactly PageSize long, to the page with the given id.
	WritePage(data []byte, pageId PageID) error

	// PageCount returns the number of pages the underlying storage has seen, which is
	// one past the highest page id ever written.
	PageCount() int

	Close() error
}

var _ IDiskManager = &Manager{}

type Manager struct {
	file     *os.File
	filename string
	size     int64
	mu       sync.Mutex
	logger   *zap.Logger
}

func NewDiskManager(file string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_RDWR, os.ModePerm)
	if err != nil {
		return nil, err
	}

	stats, err := f.Stat()
	if err != nil {
		return nil, err
	}

	logger.Info("db file opened", zap.String("file", file), zap.Int64("size", stats.Size()))
	return &Manager{
		file:     f,
		filename: file,
		size:     stats.Size(),
		logger:   logger,
	}, nil
}

func (d *Manager) ReadPage(pageId PageID, dest []byte) error {
	if len(dest) != PageSize {
		return fmt.Errorf("dest is not page sized: %v", len(dest))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(PageSize) * int64(pageId)
	if offset >= d.size {
		// page is past the end of the file, it was never synced hence it is empty
		for i := range dest {
			dest[i] = 0
		}
		return nil
	}

	n, err := d.file.ReadAt(dest, offset)
	if err != nil && err != io.EOF {
		return err
	}
	if n != PageSize {
		return fmt.Errorf("partial page read, page id: %v, read: %v", pageId, n)
	}

	return nil
}

func (d *Manager) WritePage(data []byte, pageId PageID) error {
	if len(data) != PageSize {
		return fmt.Errorf("data is not page sized: %v", len(data))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(PageSize) * int64(pageId)
	n, err := d.file.WriteAt(data, offset)
	if err != nil {
		return err
	}
	if n != PageSize {
		panic("written bytes are not equal to page size")
	}

	if end := offset + int64(PageSize); end > d.size {
		d.size = end
	}

	if FlushInstantly {
		if err := d.file.Sync(); err != nil {
			return err
		}
	}

	return nil
}

func (d *Manager) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(d.size) / PageSize
}

func (d *Manager) Close() error {
	d.logger.Info("db file closing", zap.String("file", d.filename))
	return d.file.Close()
}
