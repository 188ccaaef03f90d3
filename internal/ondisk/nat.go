package ondisk

import "encoding/binary"

// NatEntrySize is the packed on-disk size of one NAT entry.
const NatEntrySize = 8

// NatEntry mirrors struct hscfs_nat_entry. The NAT doubles as the
// free-nid list: a free entry has BlockAddr == InvalidLPA and NextFreeNid
// holds the next nid in the free chain instead of a node's location.
type NatEntry struct {
	BlockAddr   LPA
	NextFreeNid Nid // valid only when BlockAddr == InvalidLPA
}

// IsFree reports whether this entry currently sits in the free-nid chain.
func (e *NatEntry) IsFree() bool { return e.BlockAddr == InvalidLPA }

// Encode serializes e into buf[:NatEntrySize].
func (e *NatEntry) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(e.BlockAddr))
	binary.LittleEndian.PutUint32(buf[4:], uint32(e.NextFreeNid))
}

// Decode parses a NatEntry from buf.
func (e *NatEntry) Decode(buf []byte) {
	e.BlockAddr = LPA(binary.LittleEndian.Uint32(buf[0:]))
	e.NextFreeNid = Nid(binary.LittleEndian.Uint32(buf[4:]))
}
