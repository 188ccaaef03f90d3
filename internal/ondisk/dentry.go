package ondisk

import "encoding/binary"

// Per-block dentry layout constants (f2fs-derived extendible-hash bucket
// format, see internal/directory for the bucket-address arithmetic).
const (
	DentriesPerBlock  = 214
	DentryNameSlotLen = 8 // bytes per filename slot; names over this span slots
	DentryBitmapBytes = 27
	DentryReservedBytes = 3

	dirEntryPackedSize = 11
)

// DentryBlockEncodedSize is the on-disk size of one dentry block.
const DentryBlockEncodedSize = DentryBitmapBytes + DentryReservedBytes +
	DentriesPerBlock*dirEntryPackedSize + DentriesPerBlock*DentryNameSlotLen

// DirEntry mirrors struct hscfs_dir_entry: one slot in a dentry block's
// parallel entry array. A live entry's name lives in the matching slot
// of the block's filename array, possibly spanning NameLen/DentryNameSlotLen
// consecutive slots when the name is longer than one slot.
type DirEntry struct {
	Hash     uint32
	Ino      Ino
	NameLen  uint16
	FileType FileType
}

func (d *DirEntry) Encode(buf []byte) {
	le := binary.LittleEndian
	le.PutUint32(buf[0:], d.Hash)
	le.PutUint32(buf[4:], uint32(d.Ino))
	le.PutUint16(buf[8:], d.NameLen)
	buf[10] = byte(d.FileType)
}

func (d *DirEntry) Decode(buf []byte) {
	le := binary.LittleEndian
	d.Hash = le.Uint32(buf[0:])
	d.Ino = Ino(le.Uint32(buf[4:]))
	d.NameLen = le.Uint16(buf[8:])
	d.FileType = FileType(buf[10])
}

// DentryBlock mirrors struct hscfs_dentry_block: a bitmap of occupied
// slots, the parallel DirEntry array, and the filename slot array. A
// dentry starting at slot i has bit i of Bitmap set; NameSlots[i] holds
// the first DentryNameSlotLen bytes of its name, continuing into
// NameSlots[i+1], [i+2], ... for names longer than one slot (those
// continuation slots have their bitmap bit set too, but carry no
// DirEntry of their own).
type DentryBlock struct {
	Bitmap    [DentryBitmapBytes]byte
	Entries   [DentriesPerBlock]DirEntry
	NameSlots [DentriesPerBlock][DentryNameSlotLen]byte
}

func (b *DentryBlock) SlotOccupied(i int) bool {
	return b.Bitmap[i/8]&(1<<(i%8)) != 0
}

func (b *DentryBlock) SetSlotOccupied(i int) {
	b.Bitmap[i/8] |= 1 << (i % 8)
}

func (b *DentryBlock) ClearSlotOccupied(i int) {
	b.Bitmap[i/8] &^= 1 << (i % 8)
}

func (b *DentryBlock) Encode(buf []byte) {
	copy(buf, b.Bitmap[:])
	off := DentryBitmapBytes + DentryReservedBytes
	for i := range b.Entries {
		b.Entries[i].Encode(buf[off+i*dirEntryPackedSize:])
	}
	off += DentriesPerBlock * dirEntryPackedSize
	for i := range b.NameSlots {
		copy(buf[off+i*DentryNameSlotLen:], b.NameSlots[i][:])
	}
}

func (b *DentryBlock) Decode(buf []byte) {
	copy(b.Bitmap[:], buf[:DentryBitmapBytes])
	off := DentryBitmapBytes + DentryReservedBytes
	for i := range b.Entries {
		b.Entries[i].Decode(buf[off+i*dirEntryPackedSize:])
	}
	off += DentriesPerBlock * dirEntryPackedSize
	for i := range b.NameSlots {
		copy(b.NameSlots[i][:], buf[off+i*DentryNameSlotLen:off+(i+1)*DentryNameSlotLen])
	}
}
