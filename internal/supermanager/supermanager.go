// Package supermanager owns allocation and release of the resources
// tracked in the super block: free nids, free segments, and the active
// node/data segment cursors node and data block allocation draws from.
// Every mutation it performs updates its in-memory super block copy and
// emits the matching SUPER/NAT/SIT journal record, mirroring
// super_manager's "记录修改日志" contract throughout.
package supermanager

import (
	"context"
	"fmt"

	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
	"github.com/hscfs-project/hscfs-core/internal/sitnat"
)

// SuperSink receives SUPER journal records (offset-within-super-block,
// new value), the same narrow-interface seam sitnat.JournalSink uses to
// avoid importing internal/journal directly.
type SuperSink interface {
	RecordSuper(offset uint32, value uint32)
}

// allocKind distinguishes the node and data segment cursors, mirroring
// lpa_alloc_type.
type allocKind int

const (
	allocNode allocKind = iota
	allocData
)

// Manager allocates nids, node LPAs, and data LPAs against a shared
// SuperBlock, threading segments through the SIT's next-segment links.
// All methods assume the caller holds the metadata lock; Manager does
// no internal locking of its own.
type Manager struct {
	super *ondisk.SuperBlock
	sit   *sitnat.SitCache
	nat   *sitnat.NatCache
	sink  SuperSink

	uncommitNodeSegs []ondisk.SegID
	uncommitDataSegs []ondisk.SegID
}

// New returns a Manager over the given super block and caches. super is
// retained by pointer and mutated in place.
func New(super *ondisk.SuperBlock, sit *sitnat.SitCache, nat *sitnat.NatCache, sink SuperSink) *Manager {
	return &Manager{super: super, sit: sit, nat: nat, sink: sink}
}

func (m *Manager) setSuperField(off, val uint32) {
	m.super.SetFieldAtOffset(off, val)
	m.sink.RecordSuper(off, val)
}

// AllocNid pops the head of the free-nid list (threaded through NAT
// entries whose BlockAddr is InvalidLPA) and returns it bound to ino.
// Returns coreerr.NoFreeNid if the list is empty.
func (m *Manager) AllocNid(ctx context.Context, ino ondisk.Ino) (ondisk.Nid, error) {
	nid := ondisk.Nid(m.super.NextFreeNid)
	if nid == ondisk.InvalidNid {
		return 0, coreerr.New(coreerr.NoFreeNid, "supermanager: free nid list is empty")
	}
	entry, err := m.nat.Get(ctx, nid)
	if err != nil {
		return 0, err
	}
	m.setSuperField(ondisk.OffNextFreeNid, uint32(entry.NextFreeNid))
	if err := m.nat.Set(ctx, nid, ondisk.NatEntry{BlockAddr: ondisk.InvalidLPA, NextFreeNid: ondisk.InvalidNid}); err != nil {
		return 0, err
	}
	_ = ino // ino ownership is recorded by the caller's inode write, not here
	return nid, nil
}

// FreeNid pushes nid back onto the head of the free-nid list.
func (m *Manager) FreeNid(ctx context.Context, nid ondisk.Nid) error {
	head := ondisk.Nid(m.super.NextFreeNid)
	if err := m.nat.Set(ctx, nid, ondisk.NatEntry{BlockAddr: ondisk.InvalidLPA, NextFreeNid: head}); err != nil {
		return err
	}
	m.setSuperField(ondisk.OffNextFreeNid, uint32(nid))
	return nil
}

// allocSegment pops the head of the free-segment list and returns its
// id, decrementing FreeSegmentCount.
func (m *Manager) allocSegment(ctx context.Context) (ondisk.SegID, error) {
	head := ondisk.SegID(m.super.FirstFreeSegmentID)
	if head == ondisk.InvalidSegID {
		return 0, coreerr.New(coreerr.NoFreeSegment, "supermanager: free segment list is empty")
	}
	entry, err := m.sit.Get(ctx, head)
	if err != nil {
		return 0, err
	}
	m.setSuperField(ondisk.OffFirstFreeSegmentID, uint32(entry.NextSegment))
	m.setSuperField(ondisk.OffFreeSegmentCount, m.super.FreeSegmentCount-1)
	return head, nil
}

func (m *Manager) cursorFor(kind allocKind) (curSeg *uint32, segOff uint32, curSegOffAddr uint32, curSegIDAddr uint32, uncommit *[]ondisk.SegID) {
	if kind == allocNode {
		return &m.super.CurrentNodeSegmentID, m.super.CurrentNodeSegBlkOff, ondisk.OffCurrentNodeSegBlkOff, ondisk.OffCurrentNodeSegmentID, &m.uncommitNodeSegs
	}
	return &m.super.CurrentDataSegmentID, m.super.CurrentDataSegBlkOff, ondisk.OffCurrentDataSegBlkOff, ondisk.OffCurrentDataSegmentID, &m.uncommitDataSegs
}

// allocLPA allocates one block from kind's active segment, rolling over
// to a freshly allocated segment (retiring the exhausted one onto the
// uncommitted list) when the active segment is full.
func (m *Manager) allocLPA(ctx context.Context, kind allocKind) (ondisk.LPA, error) {
	mainBase := ondisk.LPA(m.super.MainBlkAddr)
	curSegPtr, segOff, segOffAddr, segIDAddr, uncommit := m.cursorFor(kind)

	if segOff >= ondisk.BlocksPerSegment {
		exhausted := ondisk.SegID(*curSegPtr)
		*uncommit = append(*uncommit, exhausted)

		next, err := m.allocSegment(ctx)
		if err != nil {
			return 0, err
		}
		*curSegPtr = uint32(next)
		m.setSuperField(segIDAddr, uint32(next))
		segOff = 0
	}

	segID := ondisk.SegID(*curSegPtr)
	lpa := mainBase + ondisk.LPA(uint32(segID)*ondisk.BlocksPerSegment+segOff)

	segOff++
	m.setSuperField(segOffAddr, segOff)

	if err := m.sit.ValidateLPA(ctx, lpa, mainBase); err != nil {
		return 0, fmt.Errorf("supermanager: validate allocated lpa: %w", err)
	}
	return lpa, nil
}

// AllocNodeLPA allocates one block from the active node segment.
func (m *Manager) AllocNodeLPA(ctx context.Context) (ondisk.LPA, error) {
	return m.allocLPA(ctx, allocNode)
}

// AllocDataLPA allocates one block from the active data segment.
func (m *Manager) AllocDataLPA(ctx context.Context) (ondisk.LPA, error) {
	return m.allocLPA(ctx, allocData)
}

// UncommitNodeSegs returns the node segments retired this session that
// have not yet been handed to the SSD for garbage collection.
func (m *Manager) UncommitNodeSegs() []ondisk.SegID { return m.uncommitNodeSegs }

// UncommitDataSegs returns the data segments retired this session that
// have not yet been handed to the SSD for garbage collection.
func (m *Manager) UncommitDataSegs() []ondisk.SegID { return m.uncommitDataSegs }

// ClearUncommitSegs drops both uncommitted-segment lists, called once
// their contents have been reported to the SSD.
func (m *Manager) ClearUncommitSegs() {
	m.uncommitNodeSegs = nil
	m.uncommitDataSegs = nil
}
