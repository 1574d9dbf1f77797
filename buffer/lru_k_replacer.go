package buffer

import (
	"fmt"
	"sync"
)

var _ Replacer = &LRUKReplacer{}

// LRUKReplacer picks as victim the evictable frame whose K-th most recent access is
// furthest in the past. A frame with fewer than K recorded accesses has an infinite
// backward K-distance and is always preferred over frames with a full history; among
// those the earliest first access wins, which degrades to classic LRU.
type LRUKReplacer struct {
	k         int
	numFrames int

	// history keeps up to k access timestamps per frame, oldest first. With a full
	// history the first element is the K-th most recent access; with a partial one
	// it is the first access. Either way it is the timestamp eviction compares on.
	history   [][]uint64
	allocated []bool
	evictable []bool

	currSize int
	ts       uint64
	lock     sync.Mutex
}

func NewLRUKReplacer(numFrames int, k int) *LRUKReplacer {
	if k < 1 {
		panic("replacer k must be at least 1")
	}

	return &LRUKReplacer{
		k:         k,
		numFrames: numFrames,
		history:   make([][]uint64, numFrames),
		allocated: make([]bool, numFrames),
		evictable: make([]bool, numFrames),
	}
}

func (l *LRUKReplacer) RecordAccess(frameId int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.checkFrameId(frameId)

	if !l.allocated[frameId] {
		l.allocated[frameId] = true
		l.evictable[frameId] = false
	}

	l.history[frameId] = append(l.history[frameId], l.ts)
	l.ts++
	if len(l.history[frameId]) > l.k {
		l.history[frameId] = l.history[frameId][1:]
	}
}

func (l *LRUKReplacer) SetEvictable(frameId int, evictable bool) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.checkFrameId(frameId)

	if !l.allocated[frameId] {
		return
	}

	if evictable && !l.evictable[frameId] {
		l.currSize++
	}
	if !evictable && l.evictable[frameId] {
		l.currSize--
	}
	l.evictable[frameId] = evictable
}

func (l *LRUKReplacer) Evict() (int, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.currSize == 0 {
		return 0, false
	}

	victim := -1
	victimFull := true
	var victimTs uint64
	for f := 0; f < l.numFrames; f++ {
		if !l.evictable[f] {
			continue
		}

		full := len(l.history[f]) == l.k
		ts := l.history[f][0]

		// frames with a partial history beat frames with a full one; within the
		// same class the smaller comparison timestamp wins
		if victim == -1 || (victimFull && !full) || (victimFull == full && ts < victimTs) {
			victim, victimFull, victimTs = f, full, ts
		}
	}

	l.removeInternal(victim)
	return victim, true
}

func (l *LRUKReplacer) Remove(frameId int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if frameId < 0 || frameId >= l.numFrames || !l.allocated[frameId] {
		return
	}
	if !l.evictable[frameId] {
		panic(fmt.Sprintf("removing a frame which is not evictable: %v", frameId))
	}

	l.removeInternal(frameId)
}

func (l *LRUKReplacer) removeInternal(frameId int) {
	l.history[frameId] = nil
	l.allocated[frameId] = false
	l.evictable[frameId] = false
	l.currSize--
}

func (l *LRUKReplacer) Size() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.currSize
}

func (l *LRUKReplacer) checkFrameId(frameId int) {
	if frameId < 0 || frameId >= l.numFrames {
		panic(fmt.Sprintf("frame id is out of range: %v", frameId))
	}
}
