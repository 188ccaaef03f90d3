// Package sitnat implements the SIT and NAT caches: the segment
// validity/allocation table and the nid-to-block-address table, both
// keyed by the LPA of the 4 KiB block holding their entries. A miss
// synchronously reads the block from the device; entries are mutated
// in place and the owning block is pinned for as long as the host's
// view of it is ahead of what the SSD has applied from the journal.
package sitnat

import (
	"context"
	"fmt"

	"github.com/hscfs-project/hscfs-core/internal/cache"
	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// JournalSink receives the journal records SIT/NAT mutation emits. The
// journal container implements this; sitnat depends only on the
// interface so it never imports the journal package.
type JournalSink interface {
	RecordSit(segid ondisk.SegID, entry ondisk.SitEntry)
	RecordNat(nid ondisk.Nid, entry ondisk.NatEntry)
}

const sitEntriesPerBlock = ondisk.BlockSize / ondisk.SitEntrySize
const natEntriesPerBlock = ondisk.BlockSize / ondisk.NatEntrySize

// blockHandle is the shared cache-entry shape for both SIT and NAT
// blocks: a decoded-on-read buffer of raw entry bytes plus the
// host/SSD dual-version pin counts described in the caching design
// (add_host_version pins while the host is locally ahead; add_SSD_version
// releases one unit once the SSD has applied the owning journal).
type blockHandle struct {
	lpa         ondisk.LPA
	raw         []byte // BlockSize bytes, holding packed entries
	hostVersion int
	dirty       bool
}

func readBlock(ctx context.Context, dev device.Device, lpa ondisk.LPA) (*blockHandle, error) {
	buf := make([]byte, ondisk.BlockSize)
	if err := dev.ReadBlock(ctx, uint32(lpa), buf); err != nil {
		return nil, coreerr.Wrap(coreerr.IoError, fmt.Sprintf("read block %d", lpa), err)
	}
	return &blockHandle{lpa: lpa, raw: buf}, nil
}

func writeBlock(ctx context.Context, dev device.Device, h *blockHandle) error {
	if err := dev.WriteBlock(ctx, uint32(h.lpa), h.raw); err != nil {
		return coreerr.Wrap(coreerr.IoError, fmt.Sprintf("write block %d", h.lpa), err)
	}
	h.dirty = false
	return nil
}

// SitCache caches SIT blocks keyed by their LPA, exposing per-segment
// entry operations that locate the owning block transparently.
type SitCache struct {
	dev      device.Device
	sitBase  ondisk.LPA
	sink     JournalSink
	cm       *cache.Manager[ondisk.LPA, *blockHandle]
	expSize  int
}

// NewSitCache returns a SitCache reading SIT blocks starting at sitBase.
func NewSitCache(dev device.Device, sitBase ondisk.LPA, sink JournalSink, expectSize int) *SitCache {
	return &SitCache{dev: dev, sitBase: sitBase, sink: sink, cm: cache.NewManager[ondisk.LPA, *blockHandle](), expSize: expectSize}
}

func (c *SitCache) blockLPA(segid ondisk.SegID) ondisk.LPA {
	return c.sitBase + ondisk.LPA(uint32(segid)/sitEntriesPerBlock)
}

func (c *SitCache) entryOffset(segid ondisk.SegID) int {
	return int(uint32(segid)%sitEntriesPerBlock) * ondisk.SitEntrySize
}

func (c *SitCache) fetch(ctx context.Context, segid ondisk.SegID) (*blockHandle, error) {
	lpa := c.blockLPA(segid)
	if h, ok := c.cm.Get(lpa, true); ok {
		return h, nil
	}
	h, err := readBlock(ctx, c.dev, lpa)
	if err != nil {
		return nil, err
	}
	c.doReplace()
	c.cm.Add(lpa, h)
	return h, nil
}

// doReplace evicts clean, unpinned blocks until the cache is back at or
// below its soft size cap. The cap is advisory: if everything is pinned,
// the cache is allowed to keep growing rather than fail an allocation
// mid-transaction (see the caching design's rationale for why there is
// no rollback path).
func (c *SitCache) doReplace() {
	for c.cm.Len() > c.expSize && c.cm.NumCanReplace() > 0 {
		c.cm.ReplaceOne()
	}
}

// Get returns the decoded SIT entry for segid.
func (c *SitCache) Get(ctx context.Context, segid ondisk.SegID) (ondisk.SitEntry, error) {
	h, err := c.fetch(ctx, segid)
	if err != nil {
		return ondisk.SitEntry{}, err
	}
	var e ondisk.SitEntry
	e.Decode(h.raw[c.entryOffset(segid):])
	return e, nil
}

// set writes entry back into its owning block's raw buffer, pins the
// block under the host version, marks it dirty, and emits a SIT journal
// record. Callers that need validate/invalidate's assertion discipline
// go through ValidateLPA/InvalidateLPA instead of this directly.
func (c *SitCache) set(ctx context.Context, segid ondisk.SegID, entry ondisk.SitEntry) error {
	h, err := c.fetch(ctx, segid)
	if err != nil {
		return err
	}
	entry.Encode(h.raw[c.entryOffset(segid):])
	h.dirty = true
	c.addHostVersionLocked(h)
	c.sink.RecordSit(segid, entry)
	return nil
}

func (c *SitCache) addHostVersionLocked(h *blockHandle) {
	if h.hostVersion == 0 {
		c.cm.Pin(h.lpa)
	}
	h.hostVersion++
}

// AddHostVersion pins the SIT block owning segid one more unit, used
// whenever the host's view of it advances beyond what is in the journal.
func (c *SitCache) AddHostVersion(segid ondisk.SegID) {
	if h, ok := c.cm.Get(c.blockLPA(segid), false); ok {
		c.addHostVersionLocked(h)
	}
}

// AddSSDVersion releases one host-version pin on the SIT block owning
// segid, called by the replace-protect worker once the SSD has applied
// the journal entry that advanced it.
func (c *SitCache) AddSSDVersion(segid ondisk.SegID) {
	lpa := c.blockLPA(segid)
	h, ok := c.cm.Get(lpa, false)
	if !ok || h.hostVersion == 0 {
		return
	}
	h.hostVersion--
	if h.hostVersion == 0 {
		c.cm.Unpin(lpa)
		c.doReplace()
	}
}

// ValidateLPA marks lpa's owning segment's bit valid, increments its
// valid-block count, and emits the owning SIT journal entry. lpa encodes
// its segment as lpa/BlocksPerSegment and its in-segment offset as
// lpa%BlocksPerSegment. Double-validating the same LPA is a programmer
// error: it panics rather than silently corrupting the count, matching
// the assert-fail discipline the SIT operator is specified to have.
func (c *SitCache) ValidateLPA(ctx context.Context, lpa ondisk.LPA, mainBase ondisk.LPA) error {
	segid, off := c.segmentOf(lpa, mainBase)
	entry, err := c.Get(ctx, segid)
	if err != nil {
		return err
	}
	entry.SetBit(off) // panics on double-validate
	return c.set(ctx, segid, entry)
}

// InvalidateLPA is ValidateLPA's inverse.
func (c *SitCache) InvalidateLPA(ctx context.Context, lpa ondisk.LPA, mainBase ondisk.LPA) error {
	segid, off := c.segmentOf(lpa, mainBase)
	entry, err := c.Get(ctx, segid)
	if err != nil {
		return err
	}
	entry.ClearBit(off) // panics on double-invalidate
	return c.set(ctx, segid, entry)
}

func (c *SitCache) segmentOf(lpa ondisk.LPA, mainBase ondisk.LPA) (ondisk.SegID, uint32) {
	rel := uint32(lpa - mainBase)
	return ondisk.SegID(rel / ondisk.BlocksPerSegment), rel % ondisk.BlocksPerSegment
}

// SetNextSeg rewrites segid's SIT entry next-segment pointer, used by
// supermanager to thread segments onto the free/node/data lists.
func (c *SitCache) SetNextSeg(ctx context.Context, segid ondisk.SegID, next ondisk.SegID) error {
	entry, err := c.Get(ctx, segid)
	if err != nil {
		return err
	}
	entry.NextSegment = next
	return c.set(ctx, segid, entry)
}

// Flush writes back every dirty SIT block.
func (c *SitCache) Flush(ctx context.Context) error {
	for _, h := range c.allHandles() {
		if h.dirty {
			if err := writeBlock(ctx, c.dev, h); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *SitCache) allHandles() []*blockHandle {
	all := c.cm.All()
	handles := make([]*blockHandle, 0, len(all))
	for _, h := range all {
		handles = append(handles, h)
	}
	return handles
}
