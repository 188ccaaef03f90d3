package journal

import (
	"cmp"
	"slices"

	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// dedupeLastWins collapses items down to one per key, keeping the last
// occurrence (the journal's newest value for that target), then sorts
// by key so the SSD can apply an entire wire block's worth of targets
// that happen to share a page in one pass, mirroring the two
// output-vector map choices in the original (an ordered map for
// NAT/SIT so same-page targets cluster, an unordered one for the super
// block since its few cursor fields never share a page).
func dedupeLastWins[T any, K cmp.Ordered](items []T, keyOf func(T) K) []T {
	last := make(map[K]T, len(items))
	for _, it := range items {
		last[keyOf(it)] = it
	}
	keys := make([]K, 0, len(last))
	for k := range last {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]T, len(keys))
	for i, k := range keys {
		out[i] = last[k]
	}
	return out
}

// calcWritableEntries returns how many entrySize-byte entries fit in a
// bufSize-byte region after a JournalRecordHeaderSize-byte record
// header, given the caller wants to write want of them, while leaving
// room for either another record's header or a NOP filler unless the
// write lands exactly at the end of the region. Ported directly from
// journal_writer's generic_calculate_writable_entry_num.
func calcWritableEntries(bufSize, entrySize, want int) int {
	headerLen := ondisk.JournalRecordHeaderSize
	expected := headerLen + want*entrySize

	switch {
	case expected < bufSize:
		if bufSize-expected >= headerLen {
			return want
		}
		if bufSize > 2*headerLen {
			return (bufSize - 2*headerLen) / entrySize
		}
		return 0
	case expected == bufSize:
		return want
	default:
		if bufSize < headerLen {
			return 0
		}
		return calcWritableEntries(bufSize, entrySize, (bufSize-headerLen)/entrySize)
	}
}

// group is one journal type's deduplicated, sorted entries ready to be
// packed into wire records.
type group struct {
	typ       uint8
	entrySize int
	count     int
	encodeAt  func(i int, buf []byte)
}

func sitGroup(entries []ondisk.SitJournalEntry) group {
	entries = dedupeLastWins(entries, func(e ondisk.SitJournalEntry) uint32 { return uint32(e.Segment) })
	return group{
		typ:       ondisk.JournalRecordSit,
		entrySize: ondisk.SitJournalEntryPayloadSize,
		count:     len(entries),
		encodeAt:  func(i int, buf []byte) { entries[i].Encode(buf) },
	}
}

func natGroup(entries []ondisk.NatJournalEntry) group {
	entries = dedupeLastWins(entries, func(e ondisk.NatJournalEntry) uint32 { return uint32(e.Nid) })
	return group{
		typ:       ondisk.JournalRecordNat,
		entrySize: ondisk.NatJournalEntryPayloadSize,
		count:     len(entries),
		encodeAt:  func(i int, buf []byte) { entries[i].Encode(buf) },
	}
}

func superGroup(entries []ondisk.SuperJournalEntry) group {
	entries = dedupeLastWins(entries, func(e ondisk.SuperJournalEntry) uint32 { return e.Offset })
	return group{
		typ:       ondisk.JournalRecordSuper,
		entrySize: ondisk.SuperJournalEntryPayloadSize,
		count:     len(entries),
		encodeAt:  func(i int, buf []byte) { entries[i].Encode(buf) },
	}
}

// packer accumulates wire records into fixed 4 KiB blocks.
type packer struct {
	blocks [][]byte
	off    int // write offset within the current (last) block
}

func newPacker() *packer {
	return &packer{blocks: [][]byte{make([]byte, ondisk.BlockSize)}}
}

func (p *packer) cur() []byte { return p.blocks[len(p.blocks)-1] }

func (p *packer) rollover() {
	p.blocks = append(p.blocks, make([]byte, ondisk.BlockSize))
	p.off = 0
}

func (p *packer) writeNopFill() {
	avail := ondisk.BlockSize - p.off
	if avail < ondisk.JournalRecordHeaderSize {
		return
	}
	h := ondisk.JournalRecordHeader{Len: uint16(avail), Type: ondisk.JournalRecordNop}
	h.Encode(p.cur()[p.off:])
}

func (p *packer) writeGroup(g group) {
	remaining := g.count
	written := 0
	for remaining > 0 {
		avail := ondisk.BlockSize - p.off
		n := calcWritableEntries(avail, g.entrySize, remaining)
		if n == 0 {
			p.writeNopFill()
			p.rollover()
			continue
		}
		h := ondisk.JournalRecordHeader{Len: uint16(ondisk.JournalRecordHeaderSize + n*g.entrySize), Type: g.typ}
		h.Encode(p.cur()[p.off:])
		payload := p.cur()[p.off+ondisk.JournalRecordHeaderSize:]
		for i := 0; i < n; i++ {
			g.encodeAt(written+i, payload[i*g.entrySize:])
		}
		p.off += ondisk.JournalRecordHeaderSize + n*g.entrySize
		written += n
		remaining -= n
	}
}

func (p *packer) writeEnd() {
	if ondisk.BlockSize-p.off < ondisk.JournalRecordHeaderSize {
		p.rollover()
	}
	h := ondisk.JournalRecordHeader{Len: 0, Type: ondisk.JournalRecordEnd}
	h.Encode(p.cur()[p.off:])
}

// Pack serializes c's journal entries into a sequence of 4 KiB blocks
// ready to be written to the meta-journal ring, in the order
// SIT, NAT, super (matching journal_writer::journal_output_vec_generate),
// terminated by an END record.
func Pack(c *Container) [][]byte {
	sit, nat, super := c.snapshot()

	p := newPacker()
	for _, g := range []group{sitGroup(sit), natGroup(nat), superGroup(super)} {
		if g.count == 0 {
			continue
		}
		p.writeGroup(g)
	}
	p.writeEnd()
	return p.blocks
}
