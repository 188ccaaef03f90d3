package filemap

import (
	"context"

	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/nodecache"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// Allocator supplies fresh nids and node-block LPAs while EnsurePath
// grows an index tree to reach a block number past its current holes.
// Satisfied by internal/supermanager.Manager; kept as a narrow interface
// here so filemap never imports supermanager directly.
type Allocator interface {
	AllocNid(ctx context.Context, ino ondisk.Ino) (ondisk.Nid, error)
	AllocNodeLPA(ctx context.Context) (ondisk.LPA, error)
	AllocDataLPA(ctx context.Context) (ondisk.LPA, error)
}

// DataPtr is a handle to the single data-block pointer slot EnsurePath
// resolved, whether that slot lives inline in the inode or inside a leaf
// index node. Writing through it marks the owning node dirty.
type DataPtr struct {
	entry  *nodecache.Entry
	isDirect bool
	offset int
}

// Get returns the LPA currently stored in the slot.
func (p *DataPtr) Get() ondisk.LPA {
	if p.isDirect {
		return p.entry.Inode.Direct[p.offset]
	}
	return ondisk.LPA(p.entry.Node.Entries[p.offset])
}

// Set stores lpa in the slot and marks its owning node dirty.
func (p *DataPtr) Set(nodes *nodecache.Cache, lpa ondisk.LPA) {
	if p.isDirect {
		p.entry.Inode.Direct[p.offset] = lpa
	} else {
		p.entry.Node.Entries[p.offset] = uint32(lpa)
	}
	nodes.MarkDirty(p.entry)
}

// EnsurePath walks ino's index tree to logical block number blk,
// allocating any missing indirect node blocks along the way (zero-
// initialized, linked into their parent, marked dirty) via alloc. It
// never allocates or assigns the final data block itself; the caller
// does that through the returned DataPtr. Every *nodecache.Entry touched
// is returned for the caller to Release once done with the DataPtr.
func (r *Resolver) EnsurePath(ctx context.Context, ino ondisk.Ino, blk uint64, alloc Allocator) (*DataPtr, []*nodecache.Entry, error) {
	path, ok := GetNodePath(blk)
	if !ok {
		return nil, nil, coreerr.New(coreerr.UserPathInvalid, "filemap: block number out of range")
	}

	inodeEntry, err := r.fetchNode(ctx, ino, ondisk.InvalidNid, true)
	if err != nil {
		return nil, nil, err
	}
	touched := []*nodecache.Entry{inodeEntry}

	if path.Level == 0 {
		return &DataPtr{entry: inodeEntry, isDirect: true, offset: int(path.Offset[0])}, touched, nil
	}

	curNid := inodeEntry.Inode.Nids[path.Offset[0]]
	parentNid := ino
	parentEntry := inodeEntry
	parentIsInode := true
	parentSlotOffset := path.Offset[0]

	var cur *nodecache.Entry
	for level := 1; level <= path.Level; level++ {
		if curNid == ondisk.InvalidNid {
			newNid, err := alloc.AllocNid(ctx, ino)
			if err != nil {
				return nil, touched, err
			}
			newLPA, err := alloc.AllocNodeLPA(ctx)
			if err != nil {
				return nil, touched, err
			}
			// Node.Entries is zero-valued, and InvalidNid/InvalidLPA are
			// both the zero sentinel, so a fresh node starts fully empty.
			e := &nodecache.Entry{Nid: newNid, ParentNid: parentNid, OldLPA: ondisk.InvalidLPA, NewLPA: newLPA}
			r.nodes.Add(e)
			r.nodes.MarkDirty(e)
			if parentIsInode {
				parentEntry.Inode.Nids[parentSlotOffset] = newNid
			} else {
				parentEntry.Node.Entries[parentSlotOffset] = uint32(newNid)
			}
			r.nodes.MarkDirty(parentEntry)
			curNid = newNid
			cur = e
		} else {
			cur, err = r.fetchNode(ctx, curNid, parentNid, false)
			if err != nil {
				return nil, touched, err
			}
		}
		touched = append(touched, cur)

		if level == path.Level {
			return &DataPtr{entry: cur, isDirect: false, offset: int(path.Offset[level])}, touched, nil
		}

		parentNid = curNid
		parentEntry = cur
		parentIsInode = false
		parentSlotOffset = path.Offset[level]
		curNid = ondisk.Nid(cur.Node.Entries[path.Offset[level]])
	}

	return nil, touched, coreerr.New(coreerr.UserPathInvalid, "filemap: block number out of range")
}
