// Package pagecache caches a single file's data blocks by block offset.
// Grounded on original_source/inc/cache/page_cache.hh's page_entry/
// page_cache: each file object owns one of these, separate from the
// node-block cache that holds its index tree.
package pagecache

import (
	"sync"

	"github.com/hscfs-project/hscfs-core/internal/cache"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// State is a page's write-back lifecycle state.
type State int

const (
	// StateInvalid means the page has not been filled yet (not read
	// from the SSD, nor initialized as a hole).
	StateInvalid State = iota
	StateUpToDate
	StateDirty
)

// Entry is one cached data block. OriginLPA is where it currently lives
// on the SSD (InvalidLPA if it is a hole or beyond the file's current
// size); CommitLPA is set once a dirty page has been assigned a fresh
// out-of-place location but that assignment has not yet been folded into
// the file's index tree.
type Entry struct {
	Blkoff    uint32
	OriginLPA ondisk.LPA
	CommitLPA ondisk.LPA
	Buf       []byte

	state State
	// Mu serializes concurrent preparation of this page's content, the
	// same role the original's per-page mutex plays while one reader
	// fills a page other readers are waiting on.
	Mu sync.Mutex

	refCount int
}

func newEntry(blkoff uint32) *Entry {
	return &Entry{Blkoff: blkoff, OriginLPA: ondisk.InvalidLPA, CommitLPA: ondisk.InvalidLPA, Buf: make([]byte, ondisk.BlockSize), state: StateInvalid}
}

func (e *Entry) State() State { return e.state }

// MarkUpToDate transitions an invalid (never-filled) page to up-to-date,
// called once its content has been read from the SSD or initialized as a
// hole. Does nothing if the page is already up-to-date or dirty.
func (e *Entry) MarkUpToDate() {
	if e.state == StateInvalid {
		e.state = StateUpToDate
	}
}

// Cache is a per-file page cache keyed by block offset.
type Cache struct {
	expectSize int
	cm         *cache.Manager[uint32, *Entry]
	dirtyList  []*Entry
}

// NewCache returns an empty page cache with the given soft size cap.
func NewCache(expectSize int) *Cache {
	return &Cache{expectSize: expectSize, cm: cache.NewManager[uint32, *Entry]()}
}

// Get returns the page at blkoff, creating an invalid placeholder entry
// on a miss. Every Get must be matched by a Put.
func (c *Cache) Get(blkoff uint32) *Entry {
	e, ok := c.cm.Get(blkoff, false)
	if !ok {
		e = newEntry(blkoff)
		c.cm.Add(blkoff, e)
	}
	c.addRefcount(e)
	c.doReplace()
	return e
}

// Put releases one reference taken by Get.
func (c *Cache) Put(e *Entry) {
	c.subRefcount(e)
}

func (c *Cache) addRefcount(e *Entry) {
	e.refCount++
	if e.refCount == 1 {
		c.cm.Pin(e.Blkoff)
	}
}

func (c *Cache) subRefcount(e *Entry) {
	if e.refCount == 0 {
		panic("pagecache: refcount underflow")
	}
	e.refCount--
	if e.refCount == 0 {
		c.cm.Unpin(e.Blkoff)
		c.doReplace()
	}
}

// MarkDirty transitions e to dirty and appends it to the dirty list, the
// first time per dirty epoch. Mirrors nodecache's invariant that a dirty
// entry always holds at least one reference.
func (c *Cache) MarkDirty(e *Entry) {
	if e.state == StateDirty {
		return
	}
	if e.refCount == 0 {
		panic("pagecache: MarkDirty on unreferenced entry")
	}
	e.state = StateDirty
	c.dirtyList = append(c.dirtyList, e)
}

// DirtyList returns the pages written since the last ClearDirtyList.
func (c *Cache) DirtyList() []*Entry {
	return c.dirtyList
}

// ClearDirtyList resets every dirty page to up-to-date and empties the
// dirty list, called once their commit LPAs have been folded into the
// file's index tree and handed off to the journal.
func (c *Cache) ClearDirtyList() {
	for _, e := range c.dirtyList {
		e.state = StateUpToDate
		e.OriginLPA = e.CommitLPA
		e.CommitLPA = ondisk.InvalidLPA
	}
	c.dirtyList = c.dirtyList[:0]
}

// Truncate drops every unreferenced cached page whose offset is past
// maxBlkoff, mirroring file::truncate's page_cache_->truncate call. With
// empty set (the file is now empty) it drops every unreferenced page
// whatever maxBlkoff is. Pages still referenced stay cached.
func (c *Cache) Truncate(maxBlkoff uint32, empty bool) {
	var stale []uint32
	for blkoff, e := range c.cm.All() {
		if (empty || blkoff > maxBlkoff) && e.refCount == 0 {
			stale = append(stale, blkoff)
		}
	}
	for _, blkoff := range stale {
		c.cm.Remove(blkoff)
	}
}

func (c *Cache) doReplace() {
	for c.cm.Len() > c.expectSize && c.cm.NumCanReplace() > 0 {
		c.cm.ReplaceOne()
	}
}

// Len returns the number of cached pages.
func (c *Cache) Len() int { return c.cm.Len() }
