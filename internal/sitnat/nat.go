package sitnat

import (
	"context"

	"github.com/hscfs-project/hscfs-core/internal/cache"
	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// NatCache caches NAT blocks keyed by their LPA. An unallocated entry
// (BlockAddr == InvalidLPA) doubles as a free-nid list node, with
// NextFreeNid holding the next nid in the chain; this package only
// reads and writes entries, the chain head/traversal order is owned by
// supermanager.
type NatCache struct {
	dev     device.Device
	natBase ondisk.LPA
	sink    JournalSink
	cm      *cache.Manager[ondisk.LPA, *blockHandle]
	expSize int
}

// NewNatCache returns a NatCache reading NAT blocks starting at natBase.
func NewNatCache(dev device.Device, natBase ondisk.LPA, sink JournalSink, expectSize int) *NatCache {
	return &NatCache{dev: dev, natBase: natBase, sink: sink, cm: cache.NewManager[ondisk.LPA, *blockHandle](), expSize: expectSize}
}

func (c *NatCache) blockLPA(nid ondisk.Nid) ondisk.LPA {
	return c.natBase + ondisk.LPA(uint32(nid)/natEntriesPerBlock)
}

func (c *NatCache) entryOffset(nid ondisk.Nid) int {
	return int(uint32(nid)%natEntriesPerBlock) * ondisk.NatEntrySize
}

func (c *NatCache) fetch(ctx context.Context, nid ondisk.Nid) (*blockHandle, error) {
	lpa := c.blockLPA(nid)
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

func (c *NatCache) doReplace() {
	for c.cm.Len() > c.expSize && c.cm.NumCanReplace() > 0 {
		c.cm.ReplaceOne()
	}
}

// Get returns the decoded NAT entry for nid.
func (c *NatCache) Get(ctx context.Context, nid ondisk.Nid) (ondisk.NatEntry, error) {
	h, err := c.fetch(ctx, nid)
	if err != nil {
		return ondisk.NatEntry{}, err
	}
	var e ondisk.NatEntry
	e.Decode(h.raw[c.entryOffset(nid):])
	return e, nil
}

// Set writes entry for nid, pins the owning block under the host
// version, and emits a NAT journal record.
func (c *NatCache) Set(ctx context.Context, nid ondisk.Nid, entry ondisk.NatEntry) error {
	h, err := c.fetch(ctx, nid)
	if err != nil {
		return err
	}
	entry.Encode(h.raw[c.entryOffset(nid):])
	h.dirty = true
	if h.hostVersion == 0 {
		c.cm.Pin(h.lpa)
	}
	h.hostVersion++
	c.sink.RecordNat(nid, entry)
	return nil
}

// AddSSDVersion releases one host-version pin on the NAT block owning
// nid, called once the SSD has applied the journal entry that advanced
// it.
func (c *NatCache) AddSSDVersion(nid ondisk.Nid) {
	lpa := c.blockLPA(nid)
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

// Flush writes back every dirty NAT block.
func (c *NatCache) Flush(ctx context.Context) error {
	for _, h := range c.cm.All() {
		if h.dirty {
			if err := writeBlock(ctx, c.dev, h); err != nil {
				return err
			}
		}
	}
	return nil
}
