// Package nodecache caches node blocks (inodes, direct nodes, and
// indirect nodes) keyed by nid. A node's reference count doubles as its
// pin: any live handle, any outstanding dirty state, and any child node
// that references it as a parent all hold one unit, and a reference
// count reaching zero is what makes the entry eligible for eviction.
// Adding a non-root node bumps its parent's reference count once, so a
// node tree can never be partially evicted out from under a still-cached
// descendant.
package nodecache

import (
	"github.com/hscfs-project/hscfs-core/internal/cache"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// EntryState is a node block's write-back lifecycle state.
type EntryState int

const (
	StateUpToDate EntryState = iota
	StateDirty
)

// Entry is one cached node block: either an Inode or an IndirectNode,
// never both, selected by IsInode. OldLPA is where the block currently
// lives on the SSD; NewLPA is set once the host has allocated a
// replacement location for a dirty block but the journal entry
// committing that relocation has not yet been applied.
type Entry struct {
	Nid       ondisk.Nid
	ParentNid ondisk.Nid // InvalidNid if this entry is an inode
	OldLPA    ondisk.LPA
	NewLPA    ondisk.LPA

	IsInode bool
	Inode   ondisk.Inode
	Node    ondisk.IndirectNode

	state    EntryState
	refCount int
}

func (e *Entry) State() EntryState { return e.state }

// Cache is the node block cache. It wraps cache.Manager for the
// pin/LRU discipline and layers the parent-refcount and dirty-list
// bookkeeping on top, matching node_block_cache's contract.
type Cache struct {
	expectSize int
	cm         *cache.Manager[ondisk.Nid, *Entry]
	dirtyList  []*Entry
}

// NewCache returns an empty node cache with the given soft size cap.
func NewCache(expectSize int) *Cache {
	return &Cache{expectSize: expectSize, cm: cache.NewManager[ondisk.Nid, *Entry]()}
}

// Add inserts a freshly-read or freshly-allocated node block. Callers
// must ensure parentNid (if not InvalidNid) is already cached; Add bumps
// its reference count once on the caller's behalf. Returns the new
// entry.
func (c *Cache) Add(e *Entry) *Entry {
	if e.ParentNid != ondisk.InvalidNid {
		parent, ok := c.cm.Get(e.ParentNid, false)
		if !ok {
			panic("nodecache: Add with parent not cached")
		}
		c.addRefcount(parent)
	}
	c.cm.Add(e.Nid, e)
	c.addRefcount(e)
	c.doReplace()
	return e
}

// Get returns the cached entry for nid, bumping its reference count, or
// nil if not present. Every Get must be matched by a Put.
func (c *Cache) Get(nid ondisk.Nid) *Entry {
	e, ok := c.cm.Get(nid, true)
	if !ok {
		return nil
	}
	c.addRefcount(e)
	return e
}

// Put releases one reference on e, taken either by Add or Get.
func (c *Cache) Put(e *Entry) {
	c.subRefcount(e)
}

func (c *Cache) addRefcount(e *Entry) {
	e.refCount++
	if e.refCount == 1 {
		c.cm.Pin(e.Nid)
	}
}

func (c *Cache) subRefcount(e *Entry) {
	if e.refCount == 0 {
		panic("nodecache: refcount underflow")
	}
	e.refCount--
	if e.refCount == 0 {
		c.cm.Unpin(e.Nid)
		c.doReplace()
	}
}

// MarkDirty transitions e to dirty and appends it to the dirty list, the
// first time per dirty epoch, taking one reference that the dirty state
// holds. e must hold at least one reference already, matching the
// invariant that a dirty entry is never evictable.
func (c *Cache) MarkDirty(e *Entry) {
	if e.state == StateDirty {
		return
	}
	if e.refCount == 0 {
		panic("nodecache: MarkDirty on unreferenced entry")
	}
	e.state = StateDirty
	c.addRefcount(e)
	c.dirtyList = append(c.dirtyList, e)
}

// DirtyList returns the current dirty list without clearing it.
func (c *Cache) DirtyList() []*Entry {
	return c.dirtyList
}

// ClearDirtyList resets every dirty entry back to up-to-date and empties
// the dirty list. Called once their writes have been durably placed (the
// owning journal transaction has been handed to the apply worker). The
// references the dirty state held are not released here: they pass to
// whoever kept the DirtyList slice (the transaction's replace-protect
// record), which Puts each entry.
func (c *Cache) ClearDirtyList() {
	for _, e := range c.dirtyList {
		e.state = StateUpToDate
	}
	c.dirtyList = nil
}

func (c *Cache) doReplace() {
	for c.cm.Len() > c.expectSize && c.cm.NumCanReplace() > 0 {
		c.cm.ReplaceOne()
	}
}

// ForceReplace evicts eligible entries regardless of whether the cache is
// over its soft cap, used by memory-pressure callers.
func (c *Cache) ForceReplace() {
	for c.cm.NumCanReplace() > 0 {
		c.cm.ReplaceOne()
	}
}

// Len returns the number of cached node blocks.
func (c *Cache) Len() int { return c.cm.Len() }
