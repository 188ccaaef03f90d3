package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

func TestPackDedupesAndOrdersByKey(t *testing.T) {
	c := NewContainer()
	c.RecordNat(5, ondisk.NatEntry{BlockAddr: 1})
	c.RecordNat(2, ondisk.NatEntry{BlockAddr: 2})
	c.RecordNat(5, ondisk.NatEntry{BlockAddr: 99}) // last value for nid 5 wins
	c.RecordSit(1, ondisk.SitEntry{VblocksCnt: 3})

	blocks := Pack(c)
	require.NotEmpty(t, blocks)

	buf := blocks[0]
	var hdr ondisk.JournalRecordHeader
	off := 0

	hdr.Decode(buf[off:])
	assert.Equal(t, uint8(ondisk.JournalRecordSit), hdr.Type)
	off += int(hdr.Len) // Len is the record's total length, header included

	hdr.Decode(buf[off:])
	assert.Equal(t, uint8(ondisk.JournalRecordNat), hdr.Type)
	// two distinct nids (2 and 5), most recent value for nid 5
	natCount := (int(hdr.Len) - ondisk.JournalRecordHeaderSize) / ondisk.NatJournalEntryPayloadSize
	assert.Equal(t, 2, natCount)

	var e1, e2 ondisk.NatJournalEntry
	payload := buf[off+ondisk.JournalRecordHeaderSize:]
	e1.Decode(payload)
	e2.Decode(payload[ondisk.NatJournalEntryPayloadSize:])
	assert.Equal(t, ondisk.Nid(2), e1.Nid)
	assert.Equal(t, ondisk.Nid(5), e2.Nid)
	assert.Equal(t, ondisk.LPA(99), e2.Entry.BlockAddr)
}

func TestPackEmptyContainerIsJustEnd(t *testing.T) {
	c := NewContainer()
	blocks := Pack(c)
	require.Len(t, blocks, 1)

	var hdr ondisk.JournalRecordHeader
	hdr.Decode(blocks[0])
	assert.Equal(t, uint8(ondisk.JournalRecordEnd), hdr.Type)
	assert.Equal(t, uint16(0), hdr.Len)
}

func TestCalcWritableEntriesLeavesRoomForNop(t *testing.T) {
	// exactly fits with no leftover
	n := calcWritableEntries(ondisk.JournalRecordHeaderSize+2*8, 8, 2)
	assert.Equal(t, 2, n)

	// wanted 2 entries fit with 3 bytes to spare, too little for another
	// header or a NOP: shrink to 1 so a NOP can still terminate the block
	n = calcWritableEntries(23, 8, 2)
	assert.Equal(t, 1, n)
}
