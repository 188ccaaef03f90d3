// Package dentrycache caches resolved directory entries keyed by
// (dir_ino, name), so a repeated lookup in the same directory never
// repeats the vendor path-lookup command. A dentry's storage position
// (which dentry block and which slot within it) is filled in once known,
// letting remove/link mutate the backing block directly instead of
// re-walking the hash table.
package dentrycache

import (
	"github.com/hscfs-project/hscfs-core/internal/cache"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// Key identifies a dentry cache entry.
type Key struct {
	DirIno ondisk.Ino
	Name   string
}

// StorePos locates a dentry's slot within its directory file, once
// known.
type StorePos struct {
	Blkno   uint32
	Slotno  uint32
	IsValid bool
}

// Dentry is one cached directory entry. ParentKey lets a handle walk up
// to its containing directory's own dentry without a second cache
// lookup, mirroring the teacher-adjacent C++ dentry's parent pointer.
type Dentry struct {
	Key       Key
	Ino       ondisk.Ino
	FileType  ondisk.FileType
	ParentKey Key // equal to Key itself for the root directory
	State     ondisk.DentryState
	Pos       StorePos

	refCount int
	removed  bool // set by Cache.Remove; suppresses Put's Unpin on a slot that may since have been reused by a different *Dentry under the same key
}

// Cache is the dentry cache.
type Cache struct {
	expectSize int
	cm         *cache.Manager[Key, *Dentry]
}

// NewCache returns an empty dentry cache with the given soft size cap.
func NewCache(expectSize int) *Cache {
	return &Cache{expectSize: expectSize, cm: cache.NewManager[Key, *Dentry]()}
}

// Add inserts d, freshly constructed in state DentryValid with Pos
// invalid and zero references, matching the C++ dentry constructor's
// postconditions.
func (c *Cache) Add(d *Dentry) {
	c.cm.Add(d.Key, d)
	c.doReplace()
}

// Get returns the cached dentry for key, bumping its reference count, or
// nil if absent. Every Get must be matched by a Put.
func (c *Cache) Get(key Key) *Dentry {
	d, ok := c.cm.Get(key, true)
	if !ok {
		return nil
	}
	c.addRef(d)
	return d
}

// Put releases one reference taken by Get. Safe to call after the same
// key has been handed to Remove, even if a different *Dentry has since
// been Added under it: the removed flag lives on d itself, not on the
// key, so a stale Put never unpins someone else's entry.
func (c *Cache) Put(d *Dentry) {
	if d.refCount == 0 {
		panic("dentrycache: refcount underflow")
	}
	d.refCount--
	if d.refCount == 0 && !d.removed {
		c.cm.Unpin(d.Key)
		c.doReplace()
	}
}

func (c *Cache) addRef(d *Dentry) {
	d.refCount++
	if d.refCount == 1 {
		c.cm.Pin(d.Key)
	}
}

// Remove drops key's entry from the cache unconditionally, regardless of
// pin state, and flags it so a Put arriving later (from a caller that
// had already Get'd it) does not try to unpin a slot that may since have
// been reused by a freshly Added dentry under the same key. Called once
// a dentry's on-disk slot is cleared, freeing the name for immediate
// reuse (e.g. create-after-unlink of the same path) rather than waiting
// for ordinary LRU pressure to evict it.
func (c *Cache) Remove(key Key) {
	if d, ok := c.cm.Get(key, false); ok {
		d.removed = true
	}
	c.cm.Remove(key)
}

func (c *Cache) doReplace() {
	for c.cm.Len() > c.expectSize && c.cm.NumCanReplace() > 0 {
		c.cm.ReplaceOne()
	}
}

// Len returns the number of cached dentries.
func (c *Cache) Len() int { return c.cm.Len() }
