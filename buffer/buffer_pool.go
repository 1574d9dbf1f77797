package buffer

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"selvi/common"
	"selvi/container/hashtable"
	"selvi/disk"
	"selvi/disk/pages"
	"selvi/transaction"
)

// ErrNoFreeFrames is returned when every frame is pinned and the replacer has no victim to offer.
var ErrNoFreeFrames = errors.New("all frames are pinned and nothing is evictable")

// directoryBucketSize is the bucket capacity of the page directory.
const directoryBucketSize = 4

// BufferPool owns a fixed array of frames and caches physical pages in them. Callers
// get pages by pinned reference and must unpin them when done; a frame whose pin count
// is zero becomes a candidate for eviction through the replacer.
//
// A single pool wide lock linearizes directory, replacer and free list changes. Disk
// I/O on a frame happens after the pool lock is dropped, under a per frame lock that
// was acquired while the pool lock was still held, so no other operation can observe
// the frame mid transition.
type BufferPool struct {
	poolSize    int
	frames      []*pages.RawPage
	pageTable   *hashtable.ExtendibleHashTable[disk.PageID, int]
	emptyFrames []int
	replacer    Replacer
	nextPageID  disk.PageID
	diskManager disk.IDiskManager

	lock       sync.Mutex
	frameLocks []sync.Mutex

	logger  *zap.Logger
	metrics *poolMetrics
}

func NewBufferPool(dbFile string, poolSize, replacerK int) (*BufferPool, error) {
	dm, err := disk.NewDiskManager(dbFile, nil)
	if err != nil {
		return nil, err
	}

	return NewBufferPoolWithDM(poolSize, replacerK, dm, nil), nil
}

func NewBufferPoolWithDM(poolSize, replacerK int, dm disk.IDiskManager, logger *zap.Logger) *BufferPool {
	if logger == nil {
		logger = zap.NewNop()
	}

	frames := make([]*pages.RawPage, poolSize)
	emptyFrames := make([]int, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = pages.NewRawPage(disk.InvalidPageID)
		emptyFrames[i] = i
	}

	return &BufferPool{
		poolSize:    poolSize,
		frames:      frames,
		pageTable:   hashtable.NewExtendibleHashTable[disk.PageID, int](directoryBucketSize, hashtable.IntHasher[disk.PageID]),
		emptyFrames: emptyFrames,
		replacer:    NewLRUKReplacer(poolSize, replacerK),
		nextPageID:  disk.PageID(dm.PageCount()),
		diskManager: dm,
		frameLocks:  make([]sync.Mutex, poolSize),
		logger:      logger,
		metrics:     newPoolMetrics(),
	}
}

// NewPage allocates a fresh page id and binds it to a frame pinned once. Returns
// ErrNoFreeFrames when the pool cannot reclaim a frame.
func (b *BufferPool) NewPage(txn transaction.Transaction) (*pages.RawPage, error) {
	_ = txn

	b.lock.Lock()
	frameId, ok := b.reserveFrame()
	if !ok {
		b.lock.Unlock()
		return nil, ErrNoFreeFrames
	}

	pageId := b.allocatePage()
	b.replacer.RecordAccess(frameId)
	b.replacer.SetEvictable(frameId, false)
	b.pageTable.Insert(pageId, frameId)

	frame := b.frames[frameId]
	b.frameLocks[frameId].Lock()
	defer b.frameLocks[frameId].Unlock()
	b.lock.Unlock()

	b.writeBackIfDirty(frame)
	frame.ResetMemory()
	frame.SetPageId(pageId)
	frame.SetClean()
	frame.SetPinCount(1)

	b.logger.Debug("new page", zap.Int32("pageId", int32(pageId)), zap.Int("frameId", frameId))
	return frame, nil
}

// FetchPage returns the page with the given id pinned, reading it from disk when it
// is not resident.
func (b *BufferPool) FetchPage(pageId disk.PageID) (*pages.RawPage, error) {
	b.lock.Lock()
	if frameId, ok := b.pageTable.Find(pageId); ok {
		b.replacer.RecordAccess(frameId)
		frame := b.frames[frameId]
		b.frameLocks[frameId].Lock()
		if frame.GetPinCount() == 0 {
			b.replacer.SetEvictable(frameId, false)
		}
		frame.IncrPinCount()
		b.frameLocks[frameId].Unlock()
		b.lock.Unlock()

		b.metrics.hits.Inc()
		return frame, nil
	}

	frameId, ok := b.reserveFrame()
	if !ok {
		b.lock.Unlock()
		return nil, ErrNoFreeFrames
	}

	b.replacer.RecordAccess(frameId)
	b.replacer.SetEvictable(frameId, false)
	b.pageTable.Insert(pageId, frameId)

	frame := b.frames[frameId]
	b.frameLocks[frameId].Lock()
	defer b.frameLocks[frameId].Unlock()
	b.lock.Unlock()

	b.writeBackIfDirty(frame)
	common.PanicIfErr(b.diskManager.ReadPage(pageId, frame.GetData()))
	frame.SetPageId(pageId)
	frame.SetClean()
	frame.SetPinCount(1)

	b.metrics.misses.Inc()
	return frame, nil
}

// UnpinPage drops one pin from the page. Returns false when the page is not resident
// or its pin count is already zero. A true isDirty sticks on the frame until it is
// written back.
func (b *BufferPool) UnpinPage(pageId disk.PageID, isDirty bool) bool {
	b.lock.Lock()
	frameId, ok := b.pageTable.Find(pageId)
	if !ok {
		b.lock.Unlock()
		return false
	}

	frame := b.frames[frameId]
	b.frameLocks[frameId].Lock()
	defer b.frameLocks[frameId].Unlock()
	defer b.lock.Unlock()

	if frame.GetPinCount() <= 0 {
		return false
	}

	if isDirty {
		frame.SetDirty()
	}
	frame.DecrPinCount()
	if frame.GetPinCount() == 0 {
		b.replacer.SetEvictable(frameId, true)
	}
	return true
}

// FlushPage writes the page to disk regardless of its dirty state and marks it clean.
// Returns false when the page is not resident.
func (b *BufferPool) FlushPage(pageId disk.PageID) bool {
	b.lock.Lock()
	frameId, ok := b.pageTable.Find(pageId)
	if !ok {
		b.lock.Unlock()
		return false
	}

	frame := b.frames[frameId]
	b.frameLocks[frameId].Lock()
	defer b.frameLocks[frameId].Unlock()
	b.lock.Unlock()

	common.PanicIfErr(b.diskManager.WritePage(frame.GetData(), pageId))
	frame.SetClean()
	b.metrics.flushes.Inc()
	return true
}

// FlushAll writes every resident page to disk and marks them clean.
func (b *BufferPool) FlushAll() {
	for frameId := 0; frameId < b.poolSize; frameId++ {
		frame := b.frames[frameId]
		b.lock.Lock()
		b.frameLocks[frameId].Lock()
		b.lock.Unlock()
		if frame.GetPageId() != disk.InvalidPageID {
			common.PanicIfErr(b.diskManager.WritePage(frame.GetData(), frame.GetPageId()))
			frame.SetClean()
			b.metrics.flushes.Inc()
		}
		b.frameLocks[frameId].Unlock()
	}
}

// DeletePage drops the page from the pool and frees its frame. Returns true when the
// page is not resident, false when it is pinned. The page id is never handed out again.
func (b *BufferPool) DeletePage(txn transaction.Transaction, pageId disk.PageID) bool {
	_ = txn

	b.lock.Lock()
	frameId, ok := b.pageTable.Find(pageId)
	if !ok {
		b.lock.Unlock()
		return true
	}

	frame := b.frames[frameId]
	b.frameLocks[frameId].Lock()
	defer b.frameLocks[frameId].Unlock()

	if frame.GetPinCount() != 0 {
		b.lock.Unlock()
		return false
	}

	b.pageTable.Remove(pageId)
	b.replacer.Remove(frameId)
	b.emptyFrames = append(b.emptyFrames, frameId)
	b.lock.Unlock()

	frame.ResetMemory()
	frame.SetPageId(disk.InvalidPageID)
	frame.SetPinCount(0)
	frame.SetClean()

	b.logger.Debug("page deleted", zap.Int32("pageId", int32(pageId)), zap.Int("frameId", frameId))
	return true
}

// EmptyFrameSize returns the number of frames which do not hold any physical page.
func (b *BufferPool) EmptyFrameSize() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.emptyFrames)
}

// ResidentCount returns the number of pages currently held in frames.
func (b *BufferPool) ResidentCount() int {
	return b.pageTable.Len()
}

// PinnedFrameCount returns the number of frames with outstanding pins.
func (b *BufferPool) PinnedFrameCount() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	count := 0
	for i := range b.frames {
		b.frameLocks[i].Lock()
		if b.frames[i].GetPinCount() > 0 {
			count++
		}
		b.frameLocks[i].Unlock()
	}
	return count
}

// reserveFrame pops a free frame, falling back to evicting a victim. Caller must hold
// the pool lock. The returned frame may still carry the victim's dirty data; the
// caller writes it back after dropping the pool lock.
func (b *BufferPool) reserveFrame() (int, bool) {
	if len(b.emptyFrames) > 0 {
		frameId := b.emptyFrames[0]
		b.emptyFrames = b.emptyFrames[1:]
		return frameId, true
	}

	frameId, ok := b.replacer.Evict()
	if !ok {
		return 0, false
	}

	victim := b.frames[frameId]
	if victim.GetPinCount() != 0 {
		panic(fmt.Sprintf("a page is chosen as victim while its pin count is not zero. pin count: %v, page id: %v",
			victim.GetPinCount(), victim.GetPageId()))
	}

	b.pageTable.Remove(victim.GetPageId())
	b.metrics.evictions.Inc()
	b.logger.Debug("frame evicted", zap.Int32("pageId", int32(victim.GetPageId())), zap.Int("frameId", frameId))
	return frameId, true
}

func (b *BufferPool) writeBackIfDirty(frame *pages.RawPage) {
	if !frame.IsDirty() {
		return
	}

	common.PanicIfErr(b.diskManager.WritePage(frame.GetData(), frame.GetPageId()))
	frame.SetClean()
	b.metrics.flushes.Inc()
}

func (b *BufferPool) allocatePage() disk.PageID {
	pageId := b.nextPageID
	b.nextPageID++
	return pageId
}
