// Package journal implements the meta-journal: the append-only record of
// SIT/NAT/super-block mutations a transaction produces, packed into the
// wire format the SSD's firmware replays, and committed through a queue
// a background worker drains in order.
package journal

import (
	"sync"

	"github.com/google/uuid"

	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// Container accumulates the journal entries one transaction produces.
// It implements sitnat.JournalSink and supermanager.SuperSink so every
// metadata cache can record into it without importing this package.
type Container struct {
	mu      sync.Mutex
	sit     []ondisk.SitJournalEntry
	nat     []ondisk.NatJournalEntry
	super   []ondisk.SuperJournalEntry
	txID    uint64
	traceID string
}

// NewContainer returns an empty journal container.
func NewContainer() *Container {
	return &Container{}
}

// RecordSit appends a SIT journal entry.
func (c *Container) RecordSit(segid ondisk.SegID, entry ondisk.SitEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sit = append(c.sit, ondisk.SitJournalEntry{Segment: segid, Entry: entry})
}

// RecordNat appends a NAT journal entry.
func (c *Container) RecordNat(nid ondisk.Nid, entry ondisk.NatEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nat = append(c.nat, ondisk.NatJournalEntry{Nid: nid, Entry: entry})
}

// RecordSuper appends a super-block journal entry.
func (c *Container) RecordSuper(offset uint32, value uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.super = append(c.super, ondisk.SuperJournalEntry{Offset: offset, Value: value})
}

// TxID returns the transaction number the commit queue assigned this
// container. Zero before commit.
func (c *Container) TxID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txID
}

// TraceID returns the commit queue's log-correlation id for this
// container's transaction, empty before commit. Unlike TxID, it carries
// no ordering meaning; it exists only to tie together the apply
// worker's log lines for one transaction.
func (c *Container) TraceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.traceID
}

// Reset clears every recorded entry so the container can start
// accumulating the next transaction's journal, matching
// get_and_reset_cur_journal's effect on fs_manager's running container
// without handing out a fresh object every cache would need rewiring
// to sink into.
func (c *Container) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sit = c.sit[:0]
	c.nat = c.nat[:0]
	c.super = c.super[:0]
	c.txID = 0
	c.traceID = ""
}

func (c *Container) setTxID(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txID = id
	c.traceID = uuid.NewString()
}

// snapshot returns copies of the three journal slices for packing,
// taken under lock so a concurrent Record call during packing cannot
// race with the reader.
func (c *Container) snapshot() ([]ondisk.SitJournalEntry, []ondisk.NatJournalEntry, []ondisk.SuperJournalEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sit := append([]ondisk.SitJournalEntry(nil), c.sit...)
	nat := append([]ondisk.NatJournalEntry(nil), c.nat...)
	super := append([]ondisk.SuperJournalEntry(nil), c.super...)
	return sit, nat, super
}
