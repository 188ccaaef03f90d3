package ondisk

import "encoding/binary"

// Journal wire record type tags, packed into a record's Type byte.
const (
	JournalRecordNat   = 0x01
	JournalRecordSit   = 0x02
	JournalRecordSuper = 0x03
	JournalRecordNop   = 0x7e
	JournalRecordEnd   = 0x7f
)

// JournalRecordHeaderSize is the fixed prefix every wire record carries
// ahead of its type-specific payload.
const JournalRecordHeaderSize = 4

// JournalRecordHeader is the length-typed envelope around every record
// written to the meta-journal ring: a NOP record's Len covers this header
// plus arbitrary padding and no payload fields below apply to it, an END
// record carries Len == 0 and terminates a transaction's record run.
type JournalRecordHeader struct {
	Len uint16 // total length of the record, this header included, in bytes
	Type uint8
	Rsv  uint8
}

func (h *JournalRecordHeader) Encode(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:], h.Len)
	buf[2] = h.Type
	buf[3] = h.Rsv
}

func (h *JournalRecordHeader) Decode(buf []byte) {
	h.Len = binary.LittleEndian.Uint16(buf[0:])
	h.Type = buf[2]
	h.Rsv = buf[3]
}

// NatJournalEntryPayloadSize is the payload size of a NATS record: the
// target nid plus its replacement NatEntry.
const NatJournalEntryPayloadSize = 4 + NatEntrySize

// NatJournalEntry is one (nid -> new NAT entry) update packed into a
// NATS wire record.
type NatJournalEntry struct {
	Nid   Nid
	Entry NatEntry
}

func (e *NatJournalEntry) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(e.Nid))
	e.Entry.Encode(buf[4:])
}

func (e *NatJournalEntry) Decode(buf []byte) {
	e.Nid = Nid(binary.LittleEndian.Uint32(buf[0:]))
	e.Entry.Decode(buf[4:])
}

// SitJournalEntryPayloadSize is the payload size of a SITS record: the
// target segment id plus its replacement SitEntry.
const SitJournalEntryPayloadSize = 4 + SitEntrySize

// SitJournalEntry is one (segment -> new SIT entry) update packed into a
// SITS wire record.
type SitJournalEntry struct {
	Segment SegID
	Entry   SitEntry
}

func (e *SitJournalEntry) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(e.Segment))
	e.Entry.Encode(buf[4:])
}

func (e *SitJournalEntry) Decode(buf []byte) {
	e.Segment = SegID(binary.LittleEndian.Uint32(buf[0:]))
	e.Entry.Decode(buf[4:])
}

// SuperJournalEntryPayloadSize is the payload size of a SUPER record: a
// byte offset into the super block's mutable cursor section plus the new
// 32-bit value to store there.
const SuperJournalEntryPayloadSize = 8

// SuperJournalEntry is one (offset -> new value) update to the super
// block's mutable cursor fields, packed into a SUPER wire record.
type SuperJournalEntry struct {
	Offset uint32
	Value  uint32
}

func (e *SuperJournalEntry) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], e.Offset)
	binary.LittleEndian.PutUint32(buf[4:], e.Value)
}

func (e *SuperJournalEntry) Decode(buf []byte) {
	e.Offset = binary.LittleEndian.Uint32(buf[0:])
	e.Value = binary.LittleEndian.Uint32(buf[4:])
}
