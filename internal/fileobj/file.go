// Package fileobj implements the file object: the in-memory VFS-inode
// analogue that owns a file's page cache and serves read/write/truncate,
// and the opened-file descriptor layered on top of it. Grounded on
// original_source/inc/fs/file.hh and inc/fs/opened_file.hh.
package fileobj

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacobsa/syncutil"

	"github.com/hscfs-project/hscfs-core/internal/clock"
	"github.com/hscfs-project/hscfs-core/internal/dentrycache"
	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/filemap"
	"github.com/hscfs-project/hscfs-core/internal/nodecache"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
	"github.com/hscfs-project/hscfs-core/internal/pagecache"
)

const blockSize = ondisk.BlockSize

func idxOfBlk(pos uint64) uint32      { return uint32(pos / blockSize) }
func offInBlk(pos uint64) uint32      { return uint32(pos % blockSize) }
func endPosOfCurBlk(pos uint64) uint64 { return pos + blockSize - uint64(offInBlk(pos)) }
func sizeToBlocks(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	return (size + blockSize - 1) / blockSize
}

// File is one open file's metadata plus its page cache, analogous to a
// VFS inode. Constructed with invalid metadata; ReadMeta must be called
// before any other method is used, matching the original's contract.
type File struct {
	Ino      ondisk.Ino
	dev      device.Device
	resolver *filemap.Resolver
	nodes    *nodecache.Cache
	alloc    filemap.Allocator
	pages    *pagecache.Cache
	clk      clock.Clock

	metaMu sync.Mutex
	size   uint64
	nlink  uint32
	atime  time.Time
	mtime  time.Time

	isDirty  atomic.Bool
	opLock   syncutil.InvariantMutex
	refCount int32
	removed  bool // set by Cache.removeFile; suppresses subRefcount's Unpin on an index slot a later-arriving Release can no longer assume still holds this *File

	// fdRefCount is the subset of refCount held by open file descriptors,
	// tracked separately because refCount alone can't tell whether a file
	// is still fd-referenced (it may be sitting in the dirty set after
	// every fd closed it). Access requires the caller to hold whatever
	// serializes metadata-level file operations above this package.
	fdRefCount uint32

	dentry *dentrycache.Dentry
}

func newFile(ino ondisk.Ino, dentry *dentrycache.Dentry, dev device.Device, resolver *filemap.Resolver, nodes *nodecache.Cache, alloc filemap.Allocator, pageCacheSize int, clk clock.Clock) *File {
	f := &File{
		Ino:      ino,
		dev:      dev,
		resolver: resolver,
		nodes:    nodes,
		alloc:    alloc,
		pages:    pagecache.NewCache(pageCacheSize),
		clk:      clk,
		dentry:   dentry,
	}
	f.opLock = syncutil.NewInvariantMutex(f.checkInvariants)
	return f
}

// checkInvariants guards the fields Lock()'s holder is entitled to rely
// on staying put across the critical section: the file must still be
// attached to a dentry and never claim a negative open count.
func (f *File) checkInvariants() {
	if f.dentry == nil {
		panic("fileobj: file has no dentry")
	}
	if f.fdRefCount > 1<<31 {
		panic("fileobj: fd refcount underflowed")
	}
}

// AddFdRefcount bumps the fd-open count tracked against this file. The
// matching dentry reference is held separately by whatever resolved the
// path into this file (see internal/dentrycache's own Get/Put pinning).
func (f *File) AddFdRefcount() {
	f.fdRefCount++
}

// SubFdRefcount drops the fd-open count tracked against this file.
func (f *File) SubFdRefcount() {
	f.fdRefCount--
}

func (f *File) FdRefcount() uint32 { return f.fdRefCount }

func (f *File) AddNlink() { f.nlink++ }
func (f *File) SubNlink() { f.nlink-- }
func (f *File) Nlink() uint32 { return f.nlink }

// ReadMeta loads size/nlink/atime/mtime from the inode block. Metadata is
// invalid before this is called, matching the original's post-
// construction contract.
func (f *File) ReadMeta(ctx context.Context) error {
	entry, err := f.resolver.InodeEntry(ctx, f.Ino)
	if err != nil {
		return err
	}
	defer f.resolver.Release([]*nodecache.Entry{entry})

	f.metaMu.Lock()
	f.size = entry.Inode.Size
	f.nlink = entry.Inode.Nlink
	f.atime = time.Unix(0, int64(entry.Inode.Atime))
	f.mtime = time.Unix(0, int64(entry.Inode.Mtime))
	f.metaMu.Unlock()

	f.isDirty.Store(false)
	return nil
}

func (f *File) markAccess() {
	f.metaMu.Lock()
	f.atime = f.clk.Now()
	f.metaMu.Unlock()
}

func (f *File) markModified() {
	now := f.clk.Now()
	f.metaMu.Lock()
	f.atime = now
	f.mtime = now
	f.metaMu.Unlock()
}

func (f *File) curSize() uint64 {
	f.metaMu.Lock()
	defer f.metaMu.Unlock()
	return f.size
}

func (f *File) setCurSizeIfLarger(newSize uint64) {
	f.metaMu.Lock()
	defer f.metaMu.Unlock()
	if newSize > f.size {
		f.size = newSize
	}
}

// mark_dirty's CAS-once-per-epoch semantics: returns true the first time
// it transitions the file to dirty.
func (f *File) markDirty() bool {
	return f.isDirty.CompareAndSwap(false, true)
}

// preparePageContent fills e's buffer the first time it is touched: a
// device read if the block is within the file's current extent and
// mapped, or a zeroed hole/beyond-EOF page otherwise. Callers must hold
// e.Mu and must not hold the metadata lock used elsewhere in this
// package, matching prepare_page_content's locking contract.
func (f *File) preparePageContent(ctx context.Context, e *pagecache.Entry) error {
	if e.State() != pagecache.StateInvalid {
		return nil
	}
	defer e.MarkUpToDate()

	lpa, touched, err := f.resolver.Resolve(ctx, f.Ino, uint64(e.Blkoff))
	f.resolver.Release(touched)
	if err != nil {
		return err
	}
	if lpa == ondisk.InvalidLPA {
		e.OriginLPA = ondisk.InvalidLPA
		return nil // hole or beyond EOF: buffer stays zero-filled
	}
	e.OriginLPA = lpa
	return f.dev.ReadBlock(ctx, uint32(lpa), e.Buf)
}

// Read copies up to count bytes starting at pos into buffer and updates
// the file's access time. Callers should hold a shared lock on the
// file's operation lock, per the original's contract (not enforced
// here; internal/fsmanager owns that lock).
func (f *File) Read(ctx context.Context, buffer []byte, pos uint64) (int, error) {
	size := f.curSize()
	if pos >= size {
		return 0, nil
	}
	count := uint64(len(buffer))
	readCount := uint64(0)

	for readCount < count && pos < size {
		curBlk := idxOfBlk(pos)
		endPos := endPosOfCurBlk(pos)
		if endPos > size {
			endPos = size
		}
		if readCount+(endPos-pos) > count {
			endPos = pos + (count - readCount)
		}

		page := f.pages.Get(curBlk)
		page.Mu.Lock()
		err := f.preparePageContent(ctx, page)
		if err != nil {
			page.Mu.Unlock()
			f.pages.Put(page)
			return int(readCount), err
		}
		cpStart := uint64(offInBlk(pos))
		cpCnt := endPos - pos
		copy(buffer[readCount:readCount+cpCnt], page.Buf[cpStart:cpStart+cpCnt])
		page.Mu.Unlock()
		f.pages.Put(page)

		readCount += cpCnt
		pos += cpCnt
	}

	f.markAccess()
	return int(readCount), nil
}

// Write copies up to count bytes from buffer into the file starting at
// pos, allocating data pages as needed, and updates mtime/size. Every
// block written is assigned a fresh out-of-place LPA immediately rather
// than deferring that to a later write-back pass (see DESIGN.md).
func (f *File) Write(ctx context.Context, buffer []byte, pos uint64) (int, error) {
	count := uint64(len(buffer))
	writeEndPos := pos + count
	writeCount := uint64(0)

	for writeCount < count {
		curBlk := idxOfBlk(pos)
		endPos := endPosOfCurBlk(pos)
		if endPos > writeEndPos {
			endPos = writeEndPos
		}

		page := f.pages.Get(curBlk)
		page.Mu.Lock()
		if err := f.preparePageContent(ctx, page); err != nil {
			page.Mu.Unlock()
			f.pages.Put(page)
			return int(writeCount), err
		}

		cpStart := uint64(offInBlk(pos))
		cpCnt := endPos - pos
		copy(page.Buf[cpStart:cpStart+cpCnt], buffer[writeCount:writeCount+cpCnt])

		if err := f.commitPage(ctx, page); err != nil {
			page.Mu.Unlock()
			f.pages.Put(page)
			return int(writeCount), err
		}

		page.Mu.Unlock()
		f.pages.Put(page)

		writeCount += cpCnt
		pos += cpCnt
	}

	f.setCurSizeIfLarger(writeEndPos)
	f.markModified()
	return int(writeCount), nil
}

// commitPage allocates a fresh data LPA for a freshly dirtied page and
// links it into the file's index tree, growing the tree as needed.
func (f *File) commitPage(ctx context.Context, page *pagecache.Entry) error {
	if page.State() == pagecache.StateDirty {
		return nil
	}
	lpa, err := f.alloc.AllocDataLPA(ctx)
	if err != nil {
		return err
	}
	ptr, touched, err := f.resolver.EnsurePath(ctx, f.Ino, uint64(page.Blkoff), f.alloc)
	if err != nil {
		return err
	}
	ptr.Set(f.nodes, lpa)
	f.resolver.Release(touched)

	page.CommitLPA = lpa
	f.pages.MarkDirty(page)
	return nil
}

// Truncate resizes the file's index tree to tarSize, per file::truncate.
// Returns true if the size actually changed; the caller is responsible
// for marking the file dirty afterward, matching the original's split
// between resizing and dirtying.
func (f *File) Truncate(ctx context.Context, tarSize uint64) (bool, error) {
	curSize := f.curSize()
	if tarSize == curSize {
		return false, nil
	}

	if tarSize < curSize {
		oldBlkCount := sizeToBlocks(curSize)
		tarBlk := sizeToBlocks(tarSize)
		cleared, _, err := f.resolver.Reduce(ctx, f.Ino, tarBlk, oldBlkCount)
		if err != nil {
			return false, err
		}
		_ = cleared // SIT invalidation of freed data LPAs is the caller's job; see filemap.Reduce's doc comment
	}

	f.metaMu.Lock()
	f.size = tarSize
	f.metaMu.Unlock()
	f.markModified()

	if tarSize == 0 {
		f.pages.Truncate(0, true)
	} else {
		f.pages.Truncate(uint32(sizeToBlocks(tarSize)-1), false)
	}

	return true, nil
}

// Lock returns the file's operation lock, checked against
// checkInvariants on every release. Any file operation that must not
// interleave with a truncate should hold it for the duration, per the
// original's file_op_lock contract.
func (f *File) Lock() *syncutil.InvariantMutex { return &f.opLock }

// MarkDirty is Handle.mark_dirty's entry point: CASes is_dirty and
// reports whether this call was the one that flipped it, so the caller
// (fileobj.Cache) knows whether to add the file to the dirty set.
func (f *File) MarkDirty() bool { return f.markDirty() }

func (f *File) clearDirty() { f.isDirty.Store(false) }

func (f *File) addRefcount() { atomic.AddInt32(&f.refCount, 1) }
func (f *File) subRefcount() { atomic.AddInt32(&f.refCount, -1) }
func (f *File) Refcount() int32 { return atomic.LoadInt32(&f.refCount) }
