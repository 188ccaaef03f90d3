// Package ondisk defines the on-disk and wire formats named in the
// specification's data model and external-interfaces sections: the super
// block, SIT/NAT entries, node/inode blocks, dentry blocks, the SRMAP
// record, and the meta-journal wire record. Every struct here is encoded
// with a fixed little-endian byte layout via encoding/binary, not a
// general serialization library, because every field offset is part of
// the SSD's command ABI (see DESIGN.md for why a schema-driven wire
// format library was rejected for this layer).
package ondisk

const (
	// BlockSize is the fixed 4 KiB on-disk block unit.
	BlockSize = 4096

	// BlocksPerSegment is the fixed segment size (512 blocks = 2 MiB).
	BlocksPerSegment = 512

	// InvalidLPA is the reserved sentinel logical page address.
	InvalidLPA LPA = 0
	// InvalidNid is the reserved sentinel node id.
	InvalidNid Nid = 0
	// InvalidSegID is the reserved sentinel segment id (doubles as the
	// super block's own segment id).
	InvalidSegID SegID = 0

	// DirectPerInode is the number of direct data pointers held inline
	// in an inode block.
	DirectPerInode = 932
	// NidsPerInode is the number of sub-nid slots in an inode
	// (direct1, direct2, indirect1, indirect2, dindirect).
	NidsPerInode = 5
	// DirectPerBlock is the number of data pointers in a direct node block.
	DirectPerBlock = 1020
	// NidsPerBlock is the number of nid pointers in an indirect node block.
	NidsPerBlock = 1020

	// MaxFileMappingLevel is the node tree's maximum depth below the inode.
	MaxFileMappingLevel = 4
)

// Sub-nid slot indices within hscfs_inode.i_nid, matching fs.h's
// NODE_DIR1_BLOCK.. constants (offset by DirectPerInode there; here they
// are plain slot indices 0..4).
const (
	NodeDirect1 = iota
	NodeDirect2
	NodeIndirect1
	NodeIndirect2
	NodeDIndirect
)

// LPA is a 4 KiB logical page address.
type LPA uint32

// Nid identifies an inode or index node uniquely in the NAT.
type Nid uint32

// SegID identifies a 2 MiB segment.
type SegID uint32

// Ino is a file's inode number; numerically the same space as Nid (an
// inode is a node whose nid equals its ino).
type Ino = Nid

// FileType enumerates the dentry/inode file type tag.
type FileType uint8

const (
	FTUnknown FileType = iota
	FTRegFile
	FTDir
)

// DentryState is the in-cache lifecycle state of a dentry handle.
type DentryState int

const (
	DentryValid DentryState = iota
	DentryDeleted
	DentryDeletedReferredByFd
)
