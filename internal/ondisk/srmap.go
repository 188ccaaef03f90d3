package ondisk

import "encoding/binary"

// SrmapEntrySize is the packed on-disk size of one SRMAP record.
const SrmapEntrySize = 4

// SrmapEntry mirrors struct hscfs_srmap_entry: the reverse map from a
// main-area block's physical offset back to the nid that owns it (or, for
// a data block, to the node that indexes it). The SSD maintains the
// authoritative copy for its own garbage collection; the host-side SRMAP
// region this package describes is never read or written by the core
// (see SPEC_FULL.md's SRMAP section) and exists only so mkfs can lay out
// a spec-complete image.
type SrmapEntry struct {
	OwnerNid Nid
}

func (e *SrmapEntry) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(e.OwnerNid))
}

func (e *SrmapEntry) Decode(buf []byte) {
	e.OwnerNid = Nid(binary.LittleEndian.Uint32(buf[0:]))
}
