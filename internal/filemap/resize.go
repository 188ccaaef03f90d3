package filemap

import (
	"context"

	"github.com/hscfs-project/hscfs-core/internal/nodecache"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// InvalidatedLPA is one data block address a Reduce call unmapped, for
// the caller to pass to the SIT operator's InvalidateLPA after Reduce
// returns. Reduce itself never invalidates data LPAs: its contract is a
// single owner for SIT-entry updates, with the caller responsible for
// invalidating each data LPA found in already-dirty pages before calling
// Reduce, so the pointers this walk clears are never double-accounted.
type InvalidatedLPA struct {
	Blkno uint64
	LPA   ondisk.LPA
}

// Reduce walks ino's index tree over every block number in
// [tarBlk, oldBlkCount), tarBlk being the number of blocks kept, setting
// affected data pointers to InvalidLPA. A direct node left empty under an
// indirect node is unlinked from that parent and its nid returned as
// freed, for the caller to release back to the NAT free list. Direct
// nodes hung from the inode itself, and indirect/double-indirect nodes,
// stay linked and are not returned, even when left empty.
// It does not invalidate the SIT bits for the data LPAs it clears; see
// InvalidatedLPA's doc comment.
func (r *Resolver) Reduce(ctx context.Context, ino ondisk.Ino, tarBlk, oldBlkCount uint64) ([]InvalidatedLPA, []ondisk.Nid, error) {
	var cleared []InvalidatedLPA
	var freedNids []ondisk.Nid

	inodeEntry, err := r.fetchNode(ctx, ino, ondisk.InvalidNid, true)
	if err != nil {
		return nil, nil, err
	}
	defer r.nodes.Put(inodeEntry)

	for blk := oldBlkCount; blk > tarBlk; blk-- {
		path, ok := GetNodePath(blk - 1)
		if !ok {
			continue
		}
		if path.Level == 0 {
			if lpa := inodeEntry.Inode.Direct[path.Offset[0]]; lpa != ondisk.InvalidLPA {
				inodeEntry.Inode.Direct[path.Offset[0]] = ondisk.InvalidLPA
				r.nodes.MarkDirty(inodeEntry)
				cleared = append(cleared, InvalidatedLPA{Blkno: blk - 1, LPA: lpa})
			}
			continue
		}

		curNid := inodeEntry.Inode.Nids[path.Offset[0]]
		if curNid == ondisk.InvalidNid {
			continue
		}
		parentNid := ino
		chain := []*nodecacheRef{}
		var leaf *nodecacheRef
		ok = true
		for level := 1; level <= path.Level && ok; level++ {
			e, err := r.fetchNode(ctx, curNid, parentNid, false)
			if err != nil {
				return cleared, freedNids, err
			}
			ref := &nodecacheRef{nid: curNid, entry: e}
			chain = append(chain, ref)
			if level == path.Level {
				leaf = ref
			} else {
				parentNid = curNid
				curNid = ondisk.Nid(e.Node.Entries[path.Offset[level]])
				if curNid == ondisk.InvalidNid {
					ok = false
				}
			}
		}
		if ok && leaf != nil {
			off := path.Offset[path.Level]
			if lpa := leaf.entry.Node.Entries[off]; lpa != uint32(ondisk.InvalidLPA) {
				leaf.entry.Node.Entries[off] = uint32(ondisk.InvalidLPA)
				r.nodes.MarkDirty(leaf.entry)
				cleared = append(cleared, InvalidatedLPA{Blkno: blk - 1, LPA: ondisk.LPA(lpa)})
			}
			if allEntriesInvalid(leaf.entry.Node.Entries[:]) && len(chain) > 1 {
				parent := chain[len(chain)-2]
				parentOff := path.Offset[len(chain)-1]
				parent.entry.Node.Entries[parentOff] = uint32(ondisk.InvalidNid)
				r.nodes.MarkDirty(parent.entry)
				freedNids = append(freedNids, leaf.nid)
			}
		}
		for _, ref := range chain {
			r.nodes.Put(ref.entry)
		}
	}

	return cleared, freedNids, nil
}

type nodecacheRef struct {
	nid   ondisk.Nid
	entry *nodecache.Entry
}

func allEntriesInvalid(entries []uint32) bool {
	for _, e := range entries {
		if e != uint32(ondisk.InvalidLPA) {
			return false
		}
	}
	return true
}

// Expand only updates the caller-visible file size; new blocks between
// the old and new size remain holes (InvalidLPA) until actually written,
// matching the contract that allocation happens lazily on write.
func Expand(inode *ondisk.Inode, newSize uint64) {
	inode.Size = newSize
}
