// Package filemap resolves a file's logical block number to the chain of
// node blocks (and ultimately the data LPA) that indexes it, and
// implements the file resizer that grows or shrinks that index tree.
package filemap

import "github.com/hscfs-project/hscfs-core/internal/ondisk"

// NodePath describes the index-tree path to a logical block number.
// Offset[0] is either the inline direct-pointer index (when Level == 0)
// or one of ondisk.NodeDirect1..NodeDIndirect (the inode's sub-nid slot
// to descend into); Offset[1..Level] are the pointer-array indices
// within each subsequent node block down to the one holding the data
// pointer. NOffset[i] is the path's node at depth i, numbered in the
// tree-wide scheme used to address siblings (not used for addressing
// here, but required to locate a node's position for a footer check).
type NodePath struct {
	Level   int
	Offset  [4]uint32
	NOffset [4]uint32
}

const (
	directIndex   = ondisk.DirectPerInode
	directBlks    = ondisk.DirectPerBlock
	dptrsPerBlk   = ondisk.NidsPerBlock
	indirectBlks  = directBlks * dptrsPerBlk
	dindirectBlks = indirectBlks * dptrsPerBlk
)

// MaxBlkno is one past the largest logical block number this index tree
// can address.
const MaxBlkno = directIndex + 2*directBlks + 2*indirectBlks + dindirectBlks

// GetNodePath computes the index-tree path to logical block number blk,
// using the exact arithmetic of the four-level node tree: 932 inline
// direct pointers, then direct1, direct2 (1020 pointers each), then
// indirect1, indirect2 (each fanning out to 1020 direct blocks), then the
// double-indirect (fanning out to 1020 indirect blocks of 1020 direct
// blocks each). Returns ok=false if blk is out of range.
func GetNodePath(blk uint64) (NodePath, bool) {
	var p NodePath

	if blk < directIndex {
		p.Level = 0
		p.Offset[0] = uint32(blk)
		return p, true
	}
	blk -= directIndex

	if blk < directBlks {
		p.Level = 1
		p.Offset[0] = ondisk.NodeDirect1
		p.NOffset[1] = 1
		p.Offset[1] = uint32(blk)
		return p, true
	}
	blk -= directBlks

	if blk < directBlks {
		p.Level = 1
		p.Offset[0] = ondisk.NodeDirect2
		p.NOffset[1] = 2
		p.Offset[1] = uint32(blk)
		return p, true
	}
	blk -= directBlks

	if blk < indirectBlks {
		p.Level = 2
		p.Offset[0] = ondisk.NodeIndirect1
		p.NOffset[1] = 3
		idx := uint32(blk / directBlks)
		p.Offset[1] = idx
		p.NOffset[2] = 4 + idx
		p.Offset[2] = uint32(blk % directBlks)
		return p, true
	}
	blk -= indirectBlks

	if blk < indirectBlks {
		p.Level = 2
		p.Offset[0] = ondisk.NodeIndirect2
		p.NOffset[1] = 4 + dptrsPerBlk
		idx := uint32(blk / directBlks)
		p.Offset[1] = idx
		p.NOffset[2] = 5 + dptrsPerBlk + idx
		p.Offset[2] = uint32(blk % directBlks)
		return p, true
	}
	blk -= indirectBlks

	if blk < dindirectBlks {
		p.Level = 3
		p.Offset[0] = ondisk.NodeDIndirect
		p.NOffset[1] = 5 + 2*dptrsPerBlk
		idx1 := uint32(blk / indirectBlks)
		p.Offset[1] = idx1
		p.NOffset[2] = 6 + 2*dptrsPerBlk + idx1*(dptrsPerBlk+1)
		idx2 := uint32((blk / directBlks) % dptrsPerBlk)
		p.Offset[2] = idx2
		p.NOffset[3] = 7 + 2*dptrsPerBlk + idx1*(dptrsPerBlk+1) + idx2
		p.Offset[3] = uint32(blk % directBlks)
		return p, true
	}

	return p, false
}
