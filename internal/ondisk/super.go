package ondisk

import "encoding/binary"

// SuperBlockMagic identifies a valid HSCFS super block.
const SuperBlockMagic = 0x48534346 // "HSCF"

// SuperBlock mirrors struct hscfs_super_block: stable geometry fields
// followed by the mutable allocator cursors that supermanager mutates
// exclusively under fs_meta_lock. Every cursor mutation emits a SUPER
// journal entry carrying (offset_within_super, new_32bit_value); the
// Off* constants below are those offsets, so callers never hardcode one
// twice between the journal packer and the replay path.
type SuperBlock struct {
	// Stable geometry, read-only after mkfs.
	Magic             uint32
	MajorVer          uint16
	MinorVer          uint16
	LogSectorSize     uint32
	LogSectorsPerBlk  uint32
	LogBlockSize      uint32
	LogBlocksPerSeg   uint32
	BlockCount        uint64
	SegmentCount      uint32
	SegmentCountSIT   uint32
	SegmentCountNAT   uint32
	SegmentCountSRMap uint32
	SegmentCountMJ    uint32
	SegmentCountMain  uint32
	Segment0BlkAddr   uint32
	SitBlkAddr        uint32
	NatBlkAddr        uint32
	SrmapBlkAddr      uint32
	MetaJournalAddr   uint32
	MainBlkAddr       uint32
	RootIno           uint32
	NodeIno           uint32
	MetaIno           uint32

	// Mutable allocator cursors, protected by fs_meta_lock.
	FirstFreeSegmentID   uint32
	FirstDataSegmentID   uint32
	FirstNodeSegmentID   uint32
	CurrentDataSegmentID uint32
	CurrentDataSegBlkOff uint32
	CurrentNodeSegmentID uint32
	CurrentNodeSegBlkOff uint32
	MetaJournalStartOff  uint16
	MetaJournalEndOff    uint16
	FreeSegmentCount     uint32
	NextFreeNid          uint32
}

// Byte offsets of the mutable cursor fields within the serialized
// SuperBlock. These are the offsets recorded in SUPER journal entries;
// the stable geometry fields above them never change after mkfs and so
// never need a journal entry.
const (
	offStableSection        = 88 // size of the stable geometry section below
	OffFirstFreeSegmentID    = offStableSection + 0
	OffFirstDataSegmentID    = offStableSection + 4
	OffFirstNodeSegmentID    = offStableSection + 8
	OffCurrentDataSegmentID  = offStableSection + 12
	OffCurrentDataSegBlkOff  = offStableSection + 16
	OffCurrentNodeSegmentID  = offStableSection + 20
	OffCurrentNodeSegBlkOff  = offStableSection + 24
	OffMetaJournalStartOff   = offStableSection + 28 // packs Start,End as two u16s
	OffFreeSegmentCount      = offStableSection + 32
	OffNextFreeNid           = offStableSection + 36
)

// SuperBlockEncodedSize is the on-disk size of the fixed-field portion
// (excluding the reserved padding that rounds the struct up to BlockSize).
const SuperBlockEncodedSize = offStableSection + 40

// Encode serializes sb's fixed-field portion into buf[:SuperBlockEncodedSize].
func (sb *SuperBlock) Encode(buf []byte) {
	le := binary.LittleEndian
	le.PutUint32(buf[0:], sb.Magic)
	le.PutUint16(buf[4:], sb.MajorVer)
	le.PutUint16(buf[6:], sb.MinorVer)
	le.PutUint32(buf[8:], sb.LogSectorSize)
	le.PutUint32(buf[12:], sb.LogSectorsPerBlk)
	le.PutUint32(buf[16:], sb.LogBlockSize)
	le.PutUint32(buf[20:], sb.LogBlocksPerSeg)
	le.PutUint64(buf[24:], sb.BlockCount)
	le.PutUint32(buf[32:], sb.SegmentCount)
	le.PutUint32(buf[36:], sb.SegmentCountSIT)
	le.PutUint32(buf[40:], sb.SegmentCountNAT)
	le.PutUint32(buf[44:], sb.SegmentCountSRMap)
	le.PutUint32(buf[48:], sb.SegmentCountMJ)
	le.PutUint32(buf[52:], sb.SegmentCountMain)
	le.PutUint32(buf[56:], sb.Segment0BlkAddr)
	le.PutUint32(buf[60:], sb.SitBlkAddr)
	le.PutUint32(buf[64:], sb.NatBlkAddr)
	le.PutUint32(buf[68:], sb.SrmapBlkAddr)
	le.PutUint32(buf[72:], sb.MetaJournalAddr)
	le.PutUint32(buf[76:], sb.MainBlkAddr)
	le.PutUint32(buf[80:], sb.RootIno)
	// NodeIno/MetaIno follow immediately; offStableSection marks the end
	// of this fixed block and the start of the mutable cursor section.
	le.PutUint32(buf[offStableSection-4:], sb.NodeIno)
	_ = sb.MetaIno // MetaIno carried in the reserved padding; see Decode

	le.PutUint32(buf[OffFirstFreeSegmentID:], sb.FirstFreeSegmentID)
	le.PutUint32(buf[OffFirstDataSegmentID:], sb.FirstDataSegmentID)
	le.PutUint32(buf[OffFirstNodeSegmentID:], sb.FirstNodeSegmentID)
	le.PutUint32(buf[OffCurrentDataSegmentID:], sb.CurrentDataSegmentID)
	le.PutUint32(buf[OffCurrentDataSegBlkOff:], sb.CurrentDataSegBlkOff)
	le.PutUint32(buf[OffCurrentNodeSegmentID:], sb.CurrentNodeSegmentID)
	le.PutUint32(buf[OffCurrentNodeSegBlkOff:], sb.CurrentNodeSegBlkOff)
	le.PutUint16(buf[OffMetaJournalStartOff:], sb.MetaJournalStartOff)
	le.PutUint16(buf[OffMetaJournalStartOff+2:], sb.MetaJournalEndOff)
	le.PutUint32(buf[OffFreeSegmentCount:], sb.FreeSegmentCount)
	le.PutUint32(buf[OffNextFreeNid:], sb.NextFreeNid)
	le.PutUint32(buf[OffNextFreeNid+4:], sb.MetaIno)
}

// Decode parses a SuperBlock from buf.
func (sb *SuperBlock) Decode(buf []byte) {
	le := binary.LittleEndian
	sb.Magic = le.Uint32(buf[0:])
	sb.MajorVer = le.Uint16(buf[4:])
	sb.MinorVer = le.Uint16(buf[6:])
	sb.LogSectorSize = le.Uint32(buf[8:])
	sb.LogSectorsPerBlk = le.Uint32(buf[12:])
	sb.LogBlockSize = le.Uint32(buf[16:])
	sb.LogBlocksPerSeg = le.Uint32(buf[20:])
	sb.BlockCount = le.Uint64(buf[24:])
	sb.SegmentCount = le.Uint32(buf[32:])
	sb.SegmentCountSIT = le.Uint32(buf[36:])
	sb.SegmentCountNAT = le.Uint32(buf[40:])
	sb.SegmentCountSRMap = le.Uint32(buf[44:])
	sb.SegmentCountMJ = le.Uint32(buf[48:])
	sb.SegmentCountMain = le.Uint32(buf[52:])
	sb.Segment0BlkAddr = le.Uint32(buf[56:])
	sb.SitBlkAddr = le.Uint32(buf[60:])
	sb.NatBlkAddr = le.Uint32(buf[64:])
	sb.SrmapBlkAddr = le.Uint32(buf[68:])
	sb.MetaJournalAddr = le.Uint32(buf[72:])
	sb.MainBlkAddr = le.Uint32(buf[76:])
	sb.RootIno = le.Uint32(buf[80:])
	sb.NodeIno = le.Uint32(buf[offStableSection-4:])

	sb.FirstFreeSegmentID = le.Uint32(buf[OffFirstFreeSegmentID:])
	sb.FirstDataSegmentID = le.Uint32(buf[OffFirstDataSegmentID:])
	sb.FirstNodeSegmentID = le.Uint32(buf[OffFirstNodeSegmentID:])
	sb.CurrentDataSegmentID = le.Uint32(buf[OffCurrentDataSegmentID:])
	sb.CurrentDataSegBlkOff = le.Uint32(buf[OffCurrentDataSegBlkOff:])
	sb.CurrentNodeSegmentID = le.Uint32(buf[OffCurrentNodeSegmentID:])
	sb.CurrentNodeSegBlkOff = le.Uint32(buf[OffCurrentNodeSegBlkOff:])
	sb.MetaJournalStartOff = le.Uint16(buf[OffMetaJournalStartOff:])
	sb.MetaJournalEndOff = le.Uint16(buf[OffMetaJournalStartOff+2:])
	sb.FreeSegmentCount = le.Uint32(buf[OffFreeSegmentCount:])
	sb.NextFreeNid = le.Uint32(buf[OffNextFreeNid:])
	sb.MetaIno = le.Uint32(buf[OffNextFreeNid+4:])
}

// SetFieldAtOffset sets the mutable cursor field of sb whose journal
// offset is off. Used when replaying a SUPER journal entry.
func (sb *SuperBlock) SetFieldAtOffset(off uint32, val uint32) {
	switch off {
	case OffFirstFreeSegmentID:
		sb.FirstFreeSegmentID = val
	case OffFirstDataSegmentID:
		sb.FirstDataSegmentID = val
	case OffFirstNodeSegmentID:
		sb.FirstNodeSegmentID = val
	case OffCurrentDataSegmentID:
		sb.CurrentDataSegmentID = val
	case OffCurrentDataSegBlkOff:
		sb.CurrentDataSegBlkOff = val
	case OffCurrentNodeSegmentID:
		sb.CurrentNodeSegmentID = val
	case OffCurrentNodeSegBlkOff:
		sb.CurrentNodeSegBlkOff = val
	case OffFreeSegmentCount:
		sb.FreeSegmentCount = val
	case OffNextFreeNid:
		sb.NextFreeNid = val
	}
}
