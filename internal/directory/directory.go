package directory

import (
	"context"

	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/dentrycache"
	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/dirdata"
	"github.com/hscfs-project/hscfs-core/internal/filemap"
	"github.com/hscfs-project/hscfs-core/internal/nodecache"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// InitEmpty materializes this directory's level-0 hash-table buckets: two
// freshly allocated, empty dentry blocks. Create only ever writes into an
// already-resolved block, so every directory inode needs this run once,
// right after it is created, before any Create/Lookup against it.
func (d *Directory) InitEmpty(ctx context.Context, alloc filemap.Allocator) error {
	nblk := BucketBlockNum(0)
	for b := uint64(0); b < nblk; b++ {
		lpa, err := alloc.AllocDataLPA(ctx)
		if err != nil {
			return err
		}
		ptr, touched, err := d.resolver.EnsurePath(ctx, d.Ino, b, alloc)
		if err != nil {
			return err
		}
		ptr.Set(d.nodes, lpa)
		d.resolver.Release(touched)

		entry, err := d.dirdata.Fetch(ctx, d.Ino, uint32(b), lpa)
		if err != nil {
			return err
		}
		d.dirdata.MarkDirty(entry)
		d.dirdata.Put(entry)
	}
	return nil
}

// LookupResult mirrors dentry_info: the resolved ino and type (ino ==
// InvalidNid if the name was not found), plus the found dentry's storage
// position (block number and slot).
type LookupResult struct {
	Ino      ondisk.Ino
	FileType ondisk.FileType
	Pos      dentrycache.StorePos
	Found    bool
}

// Directory performs extendible-hash directory operations against one
// directory file's data blocks. Every method requires the caller to
// already hold the metadata lock, matching the original's "uses of this
// class require fs_meta_lock" contract.
type Directory struct {
	Ino      ondisk.Ino
	dev      device.Device
	resolver *filemap.Resolver
	dirdata  *dirdata.Cache
	dentries *dentrycache.Cache
	nodes    *nodecache.Cache
	dirLevel int // always 0; large-dir tiering is not implemented, matching the original's i_dir_level staying fixed at 0
}

// New returns a Directory over ino's data blocks. nodes is the same node
// cache backing resolver, needed directly only by InitEmpty's DataPtr.Set
// call. dev is consulted first on a dentry-cache miss, offloading the
// hash-bucket walk to the vendor path-lookup command; a directory whose
// device doesn't support the offload (PathLookup returning an error)
// falls back to scanning buckets through resolver/dirdata directly.
func New(ino ondisk.Ino, dev device.Device, resolver *filemap.Resolver, dd *dirdata.Cache, dc *dentrycache.Cache, nodes *nodecache.Cache) *Directory {
	return &Directory{Ino: ino, dev: dev, resolver: resolver, dirdata: dd, dentries: dc, nodes: nodes}
}

func (d *Directory) fetchBlock(ctx context.Context, blkno uint64) (*dirdata.Entry, error) {
	lpa, refs, err := d.resolver.Resolve(ctx, d.Ino, blkno)
	if err != nil {
		return nil, err
	}
	d.resolver.Release(refs)
	if lpa == ondisk.InvalidLPA {
		return nil, nil // hole: bucket not yet materialized
	}
	return d.dirdata.Fetch(ctx, d.Ino, uint32(blkno), lpa)
}

// findInBlock scans one dentry block for name, returning the matching
// slot index or -1.
func findInBlock(block *ondisk.DentryBlock, name string, hash uint32) int {
	for i := 0; i < ondisk.DentriesPerBlock; i++ {
		if !block.SlotOccupied(i) {
			continue
		}
		e := block.Entries[i]
		if e.Hash != hash || int(e.NameLen) != len(name) {
			continue
		}
		if slotName(block, i, int(e.NameLen)) == name {
			return i
		}
	}
	return -1
}

// firstEmptySlot returns the first unoccupied slot index able to hold a
// name of the given length (spanning consecutive slots), or -1.
func firstEmptySlot(block *ondisk.DentryBlock, nameLen int) int {
	need := (nameLen + ondisk.DentryNameSlotLen - 1) / ondisk.DentryNameSlotLen
	run := 0
	start := -1
	for i := 0; i < ondisk.DentriesPerBlock; i++ {
		if block.SlotOccupied(i) {
			run = 0
			start = -1
			continue
		}
		if start == -1 {
			start = i
		}
		run++
		if run == need {
			return start
		}
	}
	return -1
}

func slotName(block *ondisk.DentryBlock, slot, nameLen int) string {
	need := (nameLen + ondisk.DentryNameSlotLen - 1) / ondisk.DentryNameSlotLen
	buf := make([]byte, 0, need*ondisk.DentryNameSlotLen)
	for i := 0; i < need; i++ {
		buf = append(buf, block.NameSlots[slot+i][:]...)
	}
	return string(buf[:nameLen])
}

func writeName(block *ondisk.DentryBlock, slot int, name string) {
	need := (len(name) + ondisk.DentryNameSlotLen - 1) / ondisk.DentryNameSlotLen
	padded := make([]byte, need*ondisk.DentryNameSlotLen)
	copy(padded, name)
	for i := 0; i < need; i++ {
		copy(block.NameSlots[slot+i][:], padded[i*ondisk.DentryNameSlotLen:(i+1)*ondisk.DentryNameSlotLen])
	}
}

// pathLookupOffload issues the vendor path-lookup command for a single
// name directly under this directory, the depth-1 case of the walk
// spec's path_lookup command describes: (start_ino, path_string, depth).
// ok is false when the device doesn't support (or failed) the offload,
// telling the caller to fall back to a host-side bucket scan; ok is true
// whenever the SSD answered, whether or not it found the name.
func (d *Directory) pathLookupOffload(ctx context.Context, name string) (res LookupResult, ok bool, err error) {
	out, derr := d.dev.PathLookup(ctx, uint32(d.Ino), []string{name}, 1)
	if derr != nil {
		return LookupResult{}, false, nil
	}
	if out.Resolved < 1 {
		return LookupResult{Ino: ondisk.InvalidNid, Found: false}, true, nil
	}

	entry, ferr := d.fetchBlock(ctx, uint64(out.DentryBlkIdx))
	if ferr != nil {
		return LookupResult{}, true, ferr
	}
	if entry == nil || !entry.Block.SlotOccupied(int(out.DentryBitPos)) {
		return LookupResult{}, true, coreerr.New(coreerr.NotRecoverable, "directory: path lookup offload returned an inconsistent dentry position")
	}
	de := entry.Block.Entries[out.DentryBitPos]
	d.dirdata.Put(entry)
	return LookupResult{
		Ino:      de.Ino,
		FileType: de.FileType,
		Pos:      dentrycache.StorePos{Blkno: out.DentryBlkIdx, Slotno: out.DentryBitPos, IsValid: true},
		Found:    true,
	}, true, nil
}

// Lookup resolves name in this directory: first from the dentry cache,
// then through the path-lookup offload, and finally by scanning the
// buckets of levels 0..currentDepth. currentDepth is the directory's
// hash-table depth, read from the inode by the caller rather than
// re-read by Directory on every call.
func (d *Directory) Lookup(ctx context.Context, name string, currentDepth int) (LookupResult, error) {
	if dc := d.dentries.Get(dentrycache.Key{DirIno: d.Ino, Name: name}); dc != nil {
		defer d.dentries.Put(dc)
		if dc.State == ondisk.DentryValid {
			return LookupResult{Ino: dc.Ino, FileType: dc.FileType, Pos: dc.Pos, Found: true}, nil
		}
	}

	if res, ok, err := d.pathLookupOffload(ctx, name); ok {
		return res, err
	}

	hash := Hash(name)
	for level := 0; level <= currentDepth; level++ {
		idx := BucketIndex(level, hash)
		startBlk := BucketStartBlock(level, idx)
		nblk := BucketBlockNum(level)
		for b := uint64(0); b < nblk; b++ {
			blkno := startBlk + b
			entry, err := d.fetchBlock(ctx, blkno)
			if err != nil {
				return LookupResult{}, err
			}
			if entry == nil {
				continue
			}
			slot := findInBlock(&entry.Block, name, hash)
			d.dirdata.Put(entry)
			if slot >= 0 {
				de := entry.Block.Entries[slot]
				return LookupResult{
					Ino:      de.Ino,
					FileType: de.FileType,
					Pos:      dentrycache.StorePos{Blkno: uint32(blkno), Slotno: uint32(slot), IsValid: true},
					Found:    true,
				}, nil
			}
		}
	}
	return LookupResult{Ino: ondisk.InvalidNid, Found: false}, nil
}

// Create writes a new dentry for name pointing at newIno, in the first
// available slot run of the block findCreatePos picks (the path-lookup
// candidate position, else a bucket scan), and inserts the materialized dentry into the dentry
// cache. Calling Create when name already exists is undefined, matching
// the original's contract.
func (d *Directory) Create(ctx context.Context, name string, fileType ondisk.FileType, newIno ondisk.Ino, currentDepth int, parentKey dentrycache.Key) (*dentrycache.Dentry, error) {
	hash := Hash(name)
	pos, entry, err := d.findCreatePos(ctx, name, hash, currentDepth)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, coreerr.New(coreerr.NoFreeSegment, "directory: no room for new dentry and hash-level growth is not implemented")
	}

	slot := firstEmptySlot(&entry.Block, len(name))
	if slot < 0 {
		d.dirdata.Put(entry)
		return nil, coreerr.New(coreerr.NoFreeSegment, "directory: bucket block has no room for dentry")
	}
	need := (len(name) + ondisk.DentryNameSlotLen - 1) / ondisk.DentryNameSlotLen
	for i := 0; i < need; i++ {
		entry.Block.SetSlotOccupied(slot + i)
	}
	entry.Block.Entries[slot] = ondisk.DirEntry{Hash: hash, Ino: newIno, NameLen: uint16(len(name)), FileType: fileType}
	writeName(&entry.Block, slot, name)
	d.dirdata.MarkDirty(entry)
	blkno := pos.Blkno
	d.dirdata.Put(entry)

	dc := &dentrycache.Dentry{
		Key:       dentrycache.Key{DirIno: d.Ino, Name: name},
		Ino:       newIno,
		FileType:  fileType,
		ParentKey: parentKey,
		State:     ondisk.DentryValid,
		Pos:       dentrycache.StorePos{Blkno: blkno, Slotno: uint32(slot), IsValid: true},
	}
	d.dentries.Add(dc)
	return d.dentries.Get(dc.Key), nil
}

// Link is Create without inode allocation: it writes a dentry pointing
// at an existing, already-valid ino. nlink bookkeeping is the caller's
// responsibility, matching the original's contract.
func (d *Directory) Link(ctx context.Context, name string, linkIno ondisk.Ino, fileType ondisk.FileType, currentDepth int, parentKey dentrycache.Key) (*dentrycache.Dentry, error) {
	return d.Create(ctx, name, fileType, linkIno, currentDepth, parentKey)
}

// findCreatePos locates a bucket block with room for name. It first asks
// the vendor path-lookup command for the candidate create position it
// reports when a name is absent (spec.md's "the SSD also returns a
// candidate create position"); only when the device can't answer that
// does it fall back to scanning buckets itself.
func (d *Directory) findCreatePos(ctx context.Context, name string, hash uint32, currentDepth int) (LookupResult, *dirdata.Entry, error) {
	if out, derr := d.dev.PathLookup(ctx, uint32(d.Ino), []string{name}, 1); derr == nil && out.Resolved < 1 {
		entry, ferr := d.fetchBlock(ctx, uint64(out.DentryBlkIdx))
		if ferr == nil && entry != nil {
			if firstEmptySlot(&entry.Block, len(name)) >= 0 {
				return LookupResult{Pos: dentrycache.StorePos{Blkno: out.DentryBlkIdx, IsValid: true}}, entry, nil
			}
			d.dirdata.Put(entry)
		}
	}

	for level := 0; level <= currentDepth; level++ {
		idx := BucketIndex(level, hash)
		startBlk := BucketStartBlock(level, idx)
		nblk := BucketBlockNum(level)
		for b := uint64(0); b < nblk; b++ {
			blkno := startBlk + b
			entry, err := d.fetchBlock(ctx, blkno)
			if err != nil {
				return LookupResult{}, nil, err
			}
			if entry == nil {
				continue
			}
			if firstEmptySlot(&entry.Block, len(name)) >= 0 {
				return LookupResult{Pos: dentrycache.StorePos{Blkno: uint32(blkno), IsValid: true}}, entry, nil
			}
			d.dirdata.Put(entry)
		}
	}
	return LookupResult{}, nil, nil
}

// IsEmpty reports whether every occupied hash-table bucket up to
// currentDepth holds no live dentry, for rmdir's empty-directory check.
// An unmaterialized bucket (a hole) counts as empty without a fetch.
func (d *Directory) IsEmpty(ctx context.Context, currentDepth int) (bool, error) {
	for level := 0; level <= currentDepth; level++ {
		nbuckets := dirBuckets(level)
		for idx := uint64(0); idx < nbuckets; idx++ {
			startBlk := BucketStartBlock(level, idx)
			nblk := BucketBlockNum(level)
			for b := uint64(0); b < nblk; b++ {
				entry, err := d.fetchBlock(ctx, startBlk+b)
				if err != nil {
					return false, err
				}
				if entry == nil {
					continue
				}
				occupied := blockHasAnyOccupiedSlot(&entry.Block)
				d.dirdata.Put(entry)
				if occupied {
					return false, nil
				}
			}
		}
	}
	return true, nil
}

func blockHasAnyOccupiedSlot(block *ondisk.DentryBlock) bool {
	for i := 0; i < ondisk.DentriesPerBlock; i++ {
		if block.SlotOccupied(i) {
			return true
		}
	}
	return false
}

// Remove clears dentry's slot in its directory block, transitions it to
// deleted, and marks the block dirty. The caller must ensure dentry
// currently exists (Found == true from a prior Lookup) and own its
// reference.
func (d *Directory) Remove(ctx context.Context, dc *dentrycache.Dentry) error {
	if !dc.Pos.IsValid {
		return coreerr.New(coreerr.NotFound, "directory: dentry has no storage position")
	}
	entry, err := d.fetchBlock(ctx, uint64(dc.Pos.Blkno))
	if err != nil {
		return err
	}
	if entry == nil {
		return coreerr.New(coreerr.NotFound, "directory: dentry block is a hole")
	}
	need := (len(dc.Key.Name) + ondisk.DentryNameSlotLen - 1) / ondisk.DentryNameSlotLen
	for i := 0; i < need; i++ {
		entry.Block.ClearSlotOccupied(int(dc.Pos.Slotno) + i)
	}
	d.dirdata.MarkDirty(entry)
	d.dirdata.Put(entry)

	dc.State = ondisk.DentryDeleted
	// Evict the cache slot immediately rather than waiting for LRU
	// pressure: the on-disk name is free again the instant the slot
	// clears, so a create under the same name must not collide with this
	// now-stale entry (dc itself survives as long as its caller holds a
	// reference — see dentrycache.Cache.Remove).
	d.dentries.Remove(dc.Key)
	return nil
}
