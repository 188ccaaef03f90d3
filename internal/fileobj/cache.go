package fileobj

import (
	"context"
	"sync"

	"github.com/hscfs-project/hscfs-core/internal/cache"
	"github.com/hscfs-project/hscfs-core/internal/clock"
	"github.com/hscfs-project/hscfs-core/internal/dentrycache"
	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/filemap"
	"github.com/hscfs-project/hscfs-core/internal/nodecache"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// Handle wraps a *File the way file_handle wraps a raw file pointer: it
// owns one reference against the file's cache and routes dirty-marking
// through the cache rather than the file itself, since only the cache
// knows about the dirty set.
type Handle struct {
	file  *File
	cache *Cache
}

// IsEmpty reports a zero-value handle, the moved-from state.
func (h Handle) IsEmpty() bool { return h.file == nil }

// File returns the underlying file object.
func (h Handle) File() *File { return h.file }

// MarkDirty flags the handle's file dirty and, the first time per dirty
// epoch, files it under the cache's dirty set.
func (h Handle) MarkDirty() {
	if h.file.markDirty() {
		h.cache.addToDirtySet(h)
	}
}

// Clone duplicates the handle, bumping the file's reference count to
// match, the Go analogue of file_handle's copy constructor.
func (h Handle) Clone() Handle {
	if h.file != nil {
		h.cache.addRefcount(h.file)
	}
	return h
}

// Release drops the reference this handle holds. Safe to call on an
// empty handle.
func (h Handle) Release() {
	if h.file != nil {
		h.cache.subRefcount(h.file)
	}
}

// DeleteFile tears the file down: marks its dentry deleted and removes
// the file from the cache outright. Panics if nlink or the fd reference
// count is still nonzero, matching file_handle::delete_file's
// precondition — the caller is responsible for checking both before
// calling this.
func (h Handle) DeleteFile() {
	f := h.file
	if f.Nlink() != 0 || f.FdRefcount() != 0 {
		panic("fileobj: DeleteFile called on a file still linked or fd-referenced")
	}
	if f.dentry != nil {
		f.dentry.State = ondisk.DentryDeleted
	}
	h.cache.removeFile(f)
}

// Cache is the file_obj_cache: a refcounted LRU of *File keyed by inode
// number, with a side set of dirty files protected by its own lock so
// that a page-cache writer marking a file dirty never has to take
// whatever lock serializes add/get.
type Cache struct {
	expectSize int
	dev        device.Device
	nat        filemap.NatLocator
	nodes      *nodecache.Cache
	dentries   *dentrycache.Cache
	alloc      filemap.Allocator
	pageCacheSize int
	clk        clock.Clock

	cm *cache.Manager[ondisk.Ino, *File]

	dirtyMu sync.Mutex
	dirty   map[ondisk.Ino]Handle
}

// NewCache builds an empty file object cache over the given
// collaborators. alloc supplies fresh nids/LPAs for index-tree growth
// during writes.
func NewCache(expectSize int, dev device.Device, nat filemap.NatLocator, nodes *nodecache.Cache, dentries *dentrycache.Cache, alloc filemap.Allocator, pageCacheSize int, clk clock.Clock) *Cache {
	return &Cache{
		expectSize:    expectSize,
		dev:           dev,
		nat:           nat,
		nodes:         nodes,
		dentries:      dentries,
		alloc:         alloc,
		pageCacheSize: pageCacheSize,
		clk:           clk,
		cm:            cache.NewManager[ondisk.Ino, *File](),
		dirty:         make(map[ondisk.Ino]Handle),
	}
}

// Add constructs a fresh, metadata-invalid *File for ino and inserts it.
// Callers must call ReadMeta before using the returned handle for
// anything besides bookkeeping, matching the original constructor's
// postcondition.
func (c *Cache) Add(ino ondisk.Ino, dentry *dentrycache.Dentry) Handle {
	resolver := filemap.NewResolver(c.dev, c.nat, c.nodes)
	f := newFile(ino, dentry, c.dev, resolver, c.nodes, c.alloc, c.pageCacheSize, c.clk)
	c.cm.Add(ino, f)
	c.doReplace()
	c.addRefcount(f)
	return Handle{file: f, cache: c}
}

// Get returns the cached file for ino, or an empty handle on a miss.
func (c *Cache) Get(ino ondisk.Ino) Handle {
	f, ok := c.cm.Get(ino, true)
	if !ok {
		return Handle{}
	}
	c.addRefcount(f)
	return Handle{file: f, cache: c}
}

// Contains reports whether ino currently has a cached file object.
func (c *Cache) Contains(ino ondisk.Ino) bool {
	_, ok := c.cm.Get(ino, false)
	return ok
}

func (c *Cache) addRefcount(f *File) {
	f.addRefcount()
	if f.Refcount() == 1 {
		c.cm.Pin(f.Ino)
	}
}

// subRefcount drops f's reference count. Once it reaches zero and the
// file is not sitting in the dirty set, it becomes eligible for
// replacement the next time the cache grows past expectSize. A no-op on
// the index once f.removed (set by removeFile), since a Release arriving
// after DeleteFile must not unpin a slot that may since hold a different
// *File under the same ino.
func (c *Cache) subRefcount(f *File) {
	f.subRefcount()
	if f.Refcount() == 0 && !f.removed {
		c.cm.Unpin(f.Ino)
		c.doReplace()
	}
}

func (c *Cache) addToDirtySet(h Handle) {
	c.dirtyMu.Lock()
	defer c.dirtyMu.Unlock()
	if _, ok := c.dirty[h.file.Ino]; ok {
		return
	}
	c.addRefcount(h.file) // the dirty set's own reference, separate from h's
	c.dirty[h.file.Ino] = Handle{file: h.file, cache: c}
}

// DirtyFiles returns a snapshot of every file currently dirty.
func (c *Cache) DirtyFiles() []Handle {
	c.dirtyMu.Lock()
	defer c.dirtyMu.Unlock()
	out := make([]Handle, 0, len(c.dirty))
	for _, h := range c.dirty {
		out = append(out, h)
	}
	return out
}

// ClearDirty removes ino from the dirty set and releases the dirty
// set's reference, called once its metadata and pages have been written
// back.
func (c *Cache) ClearDirty(ino ondisk.Ino) {
	c.dirtyMu.Lock()
	h, ok := c.dirty[ino]
	if ok {
		delete(c.dirty, ino)
	}
	c.dirtyMu.Unlock()
	if !ok {
		return
	}
	h.file.clearDirty()
	c.subRefcount(h.file)
}

func (c *Cache) removeFile(f *File) {
	c.dirtyMu.Lock()
	delete(c.dirty, f.Ino)
	c.dirtyMu.Unlock()
	f.removed = true
	c.cm.Remove(f.Ino)
}

func (c *Cache) doReplace() {
	for c.cm.Len() > c.expectSize && c.cm.NumCanReplace() > 0 {
		c.cm.ReplaceOne()
	}
}

// Len returns the number of cached file objects.
func (c *Cache) Len() int { return c.cm.Len() }

// GetFileObj is the file_cache_helper equivalent: returns a handle on
// ino's file object with metadata guaranteed valid, reading it through
// ReadMeta on a cache miss.
func GetFileObj(ctx context.Context, c *Cache, ino ondisk.Ino, dentry *dentrycache.Dentry) (Handle, error) {
	if h := c.Get(ino); !h.IsEmpty() {
		return h, nil
	}
	h := c.Add(ino, dentry)
	if err := h.file.ReadMeta(ctx); err != nil {
		h.Release()
		c.removeFile(h.file)
		return Handle{}, err
	}
	return h, nil
}
