package sitnat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

type fakeSink struct {
	sit []ondisk.SitJournalEntry
	nat []ondisk.NatJournalEntry
}

func (s *fakeSink) RecordSit(segid ondisk.SegID, e ondisk.SitEntry) {
	s.sit = append(s.sit, ondisk.SitJournalEntry{Segment: segid, Entry: e})
}
func (s *fakeSink) RecordNat(nid ondisk.Nid, e ondisk.NatEntry) {
	s.nat = append(s.nat, ondisk.NatJournalEntry{Nid: nid, Entry: e})
}

func TestSitCacheValidateInvalidateRoundTrip(t *testing.T) {
	dev := device.NewFakeDevice()
	sink := &fakeSink{}
	c := NewSitCache(dev, 10, sink, 16)
	ctx := context.Background()

	mainBase := ondisk.LPA(1000)
	lpa := mainBase // segment 0, offset 0

	require.NoError(t, c.ValidateLPA(ctx, lpa, mainBase))
	entry, err := c.Get(ctx, 0)
	require.NoError(t, err)
	assert.True(t, entry.BitSet(0))
	assert.EqualValues(t, 1, entry.VblocksCnt)
	assert.Len(t, sink.sit, 1)

	assert.Panics(t, func() {
		_ = c.ValidateLPA(ctx, lpa, mainBase)
	})

	require.NoError(t, c.InvalidateLPA(ctx, lpa, mainBase))
	entry, err = c.Get(ctx, 0)
	require.NoError(t, err)
	assert.False(t, entry.BitSet(0))
	assert.EqualValues(t, 0, entry.VblocksCnt)
}

func TestSitCacheHostVersionPinsBlock(t *testing.T) {
	dev := device.NewFakeDevice()
	sink := &fakeSink{}
	c := NewSitCache(dev, 10, sink, 0) // cap 0: evict eagerly when unpinned
	ctx := context.Background()

	mainBase := ondisk.LPA(1000)
	require.NoError(t, c.ValidateLPA(ctx, mainBase, mainBase))
	// block stays cached despite the cap because the host version pins it
	assert.Equal(t, 1, c.cm.Len())

	c.AddSSDVersion(0)
	c.doReplace()
	assert.Equal(t, 0, c.cm.Len())
}

func TestNatCacheSetAndFlush(t *testing.T) {
	dev := device.NewFakeDevice()
	sink := &fakeSink{}
	c := NewNatCache(dev, 20, sink, 16)
	ctx := context.Background()

	entry := ondisk.NatEntry{BlockAddr: 555}
	require.NoError(t, c.Set(ctx, 7, entry))

	got, err := c.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, entry, got)
	require.NoError(t, c.Flush(ctx))

	// A freshly loaded cache reading the same device sees the flushed value.
	c2 := NewNatCache(dev, 20, sink, 16)
	got2, err := c2.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, entry, got2)
}
