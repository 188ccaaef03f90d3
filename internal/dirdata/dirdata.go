// Package dirdata caches directory-file data blocks (the dentry blocks
// making up a directory's hash table buckets), keyed by (ino, blkno),
// the same pin/LRU discipline as every other metadata cache in this
// module.
package dirdata

import (
	"context"
	"fmt"

	"github.com/hscfs-project/hscfs-core/internal/cache"
	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// Key identifies one directory data block.
type Key struct {
	Ino   ondisk.Ino
	Blkno uint32
}

// Entry is one cached dentry block plus its physical location and
// dirty/reference state.
type Entry struct {
	Key    Key
	LPA    ondisk.LPA
	Block  ondisk.DentryBlock
	dirty  bool
	refCnt int
}

// Cache is the directory-data block cache.
type Cache struct {
	dev        device.Device
	expectSize int
	cm         *cache.Manager[Key, *Entry]
	dirtyList  []*Entry
}

// NewCache returns an empty dir-data cache reading misses through dev.
func NewCache(dev device.Device, expectSize int) *Cache {
	return &Cache{dev: dev, expectSize: expectSize, cm: cache.NewManager[Key, *Entry]()}
}

// Fetch returns the cached block for (ino, blkno) at the given LPA,
// reading it from the device on a miss, and bumps its reference count.
// Every Fetch must be matched by a Put.
func (c *Cache) Fetch(ctx context.Context, ino ondisk.Ino, blkno uint32, lpa ondisk.LPA) (*Entry, error) {
	key := Key{Ino: ino, Blkno: blkno}
	if e, ok := c.cm.Get(key, true); ok {
		c.addRef(e)
		return e, nil
	}
	buf := make([]byte, ondisk.BlockSize)
	if err := c.dev.ReadBlock(ctx, uint32(lpa), buf); err != nil {
		return nil, coreerr.Wrap(coreerr.IoError, fmt.Sprintf("dirdata: read block for ino %d blk %d", ino, blkno), err)
	}
	e := &Entry{Key: key, LPA: lpa}
	e.Block.Decode(buf)
	c.cm.Add(key, e)
	c.addRef(e)
	c.doReplace()
	return e, nil
}

func (c *Cache) addRef(e *Entry) {
	e.refCnt++
	if e.refCnt == 1 {
		c.cm.Pin(e.Key)
	}
}

// Put releases one reference taken by Fetch.
func (c *Cache) Put(e *Entry) {
	if e.refCnt == 0 {
		panic("dirdata: refcount underflow")
	}
	e.refCnt--
	if e.refCnt == 0 {
		c.cm.Unpin(e.Key)
		c.doReplace()
	}
}

// MarkDirty transitions e to dirty the first time per dirty epoch. e
// must hold at least one reference.
func (c *Cache) MarkDirty(e *Entry) {
	if e.dirty {
		return
	}
	if e.refCnt == 0 {
		panic("dirdata: MarkDirty on unreferenced entry")
	}
	e.dirty = true
	c.dirtyList = append(c.dirtyList, e)
}

// Flush writes back every dirty block and clears the dirty list.
func (c *Cache) Flush(ctx context.Context) error {
	buf := make([]byte, ondisk.BlockSize)
	for _, e := range c.dirtyList {
		e.Block.Encode(buf)
		if err := c.dev.WriteBlock(ctx, uint32(e.LPA), buf); err != nil {
			return coreerr.Wrap(coreerr.IoError, "dirdata: write back", err)
		}
		e.dirty = false
	}
	c.dirtyList = c.dirtyList[:0]
	return nil
}

func (c *Cache) doReplace() {
	for c.cm.Len() > c.expectSize && c.cm.NumCanReplace() > 0 {
		c.cm.ReplaceOne()
	}
}

// Len returns the number of cached dir-data blocks.
func (c *Cache) Len() int { return c.cm.Len() }
