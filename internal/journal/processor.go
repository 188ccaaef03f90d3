package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hscfs-project/hscfs-core/internal/clock"
	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/hscfslog"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
	"github.com/hscfs-project/hscfs-core/internal/sitnat"
)

// defaultHeadPollInterval is the apply worker's get-metajournal-head
// polling cadence.
const defaultHeadPollInterval = 100 * time.Microsecond

// pendingTx is one written-but-not-yet-SSD-confirmed transaction: the
// monotonic write-cursor position its journal blocks end at, and the
// SIT/NAT entries whose host-version pin must stay held until the SSD
// confirms it applied that range.
type pendingTx struct {
	txID    uint64
	traceID string
	endSeq  uint64
	sit     []ondisk.SitJournalEntry
	nat     []ondisk.NatJournalEntry
}

// Processor is the apply worker: it pops committed containers in order,
// packs them to wire blocks, writes them into the meta-journal ring at
// the host's own write cursor, and hands the newly written span to the
// SSD. It never releases a transaction's host-version pins off the back
// of its own write — only once a periodic get-metajournal-head poll
// reports the SSD's apply pointer has advanced past that transaction's
// range, matching the dual-version reclamation protocol's "head/tail/
// available" bookkeeping. Grounded on journal_writer (packing and
// write_to_SSD) and journal_processor (the worker loop that drives both
// the write path and the head-poll timer), reworked as one goroutine
// driven by errgroup so Start/Stop compose with the rest of the core's
// lifecycle the way gcsfuse's background workers do.
type Processor struct {
	dev          device.Device
	queue        *CommitQueue
	startLPA     ondisk.LPA
	endLPA       ondisk.LPA
	curTail      ondisk.LPA
	sit          *sitnat.SitCache
	nat          *sitnat.NatCache
	log          *hscfslog.Logger
	clk          clock.Clock
	pollInterval time.Duration
	onApplied    func(txID uint64)

	mu        sync.Mutex
	total     ondisk.LPA // ring capacity in blocks
	available ondisk.LPA // blocks the SSD has confirmed free for reuse
	headSeq   uint64     // last confirmed-applied position (monotonic block count)
	submitted uint64     // total blocks ever written by applyOne (monotonic)
	pending   []pendingTx

	cancel context.CancelFunc
	g      *errgroup.Group
}

// SetOnApplied registers a callback run once a transaction's journal
// range has been confirmed applied by the SSD's head pointer, reporting
// its transaction id. replaceprotect uses this to release a
// transaction's cache pins only once that confirmation has happened,
// rather than as soon as the write lands in the ring.
func (p *Processor) SetOnApplied(f func(txID uint64)) { p.onApplied = f }

// NewProcessor returns a Processor writing into the ring [startLPA, endLPA)
// and polling head progress on clk's default cadence.
func NewProcessor(dev device.Device, queue *CommitQueue, startLPA, endLPA ondisk.LPA, sit *sitnat.SitCache, nat *sitnat.NatCache, log *hscfslog.Logger, clk clock.Clock) *Processor {
	total := endLPA - startLPA
	return &Processor{
		dev: dev, queue: queue, startLPA: startLPA, endLPA: endLPA, curTail: startLPA,
		sit: sit, nat: nat, log: log, clk: clk, pollInterval: defaultHeadPollInterval,
		total: total, available: total,
	}
}

// Start launches the worker goroutine. Stop must be called to reclaim it.
func (p *Processor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	p.g = g
	g.Go(func() error { return p.run(gctx) })
}

// Stop requests the worker to exit after its current container (if any)
// finishes, and waits for it.
func (p *Processor) Stop() error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	err := p.g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// run interleaves draining the commit queue with polling the SSD's
// apply head on pollInterval, so a quiet journal still notices applied
// transactions promptly and a busy one still gets serviced between
// polls, matching journal_processor's single combined loop.
func (p *Processor) run(ctx context.Context) error {
	for {
		tick := p.clk.After(p.pollInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-p.queue.ch:
			if err := p.applyOne(ctx, c); err != nil {
				p.log.Errorf("journal: apply transaction %d (trace %s) failed: %v", c.TxID(), c.TraceID(), err)
				return err
			}
		case <-tick:
			if err := p.pollHead(ctx); err != nil {
				p.log.Errorf("journal: poll meta journal head failed: %v", err)
			}
		}
	}
}

func (p *Processor) wrap(lpa ondisk.LPA) ondisk.LPA {
	span := p.endLPA - p.startLPA
	if lpa >= p.endLPA {
		return p.startLPA + (lpa-p.startLPA)%span
	}
	return lpa
}

// waitForSpace blocks, polling head, until the ring has room for need
// more blocks, matching the original's "blocks_needed <= available"
// gate on the write path.
func (p *Processor) waitForSpace(ctx context.Context, need ondisk.LPA) error {
	for {
		p.mu.Lock()
		enough := need <= p.available
		p.mu.Unlock()
		if enough {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clk.After(p.pollInterval):
		}
		if err := p.pollHead(ctx); err != nil {
			return err
		}
	}
}

// applyOne packs c, writes its blocks starting at the current write
// cursor (wrapping within the ring), advances the cursor, and hands the
// span to the SSD. The SIT/NAT host-version pins c's entries are
// holding are not released here; they are queued as a pendingTx and
// only released once pollHead sees the SSD's head pointer has passed
// this transaction's end position.
func (p *Processor) applyOne(ctx context.Context, c *Container) error {
	sit, nat, _ := c.snapshot()
	blocks := Pack(c)
	need := ondisk.LPA(len(blocks))

	if err := p.waitForSpace(ctx, need); err != nil {
		return err
	}

	startWrite := p.curTail
	for i, blk := range blocks {
		lpa := p.wrap(p.curTail + ondisk.LPA(i))
		if err := p.dev.WriteBlock(ctx, uint32(lpa), blk); err != nil {
			return coreerr.Wrap(coreerr.IoError, "journal: write wire block", err)
		}
	}
	p.curTail = p.wrap(p.curTail + need)

	if err := p.dev.UpdateMetaJournalTail(ctx, uint32(startWrite), uint32(len(blocks))); err != nil {
		return coreerr.Wrap(coreerr.IoError, "journal: update meta journal tail", err)
	}

	p.mu.Lock()
	p.submitted += uint64(need)
	p.available -= need
	p.pending = append(p.pending, pendingTx{txID: c.TxID(), traceID: c.TraceID(), endSeq: p.submitted, sit: sit, nat: nat})
	p.mu.Unlock()
	return nil
}

// pollHead issues get-metajournal-head, advances head/available by the
// range the SSD has now consumed, and releases the host-version pins of
// every pendingTx whose range lies fully behind the new head, in commit
// order.
func (p *Processor) pollHead(ctx context.Context) error {
	head, err := p.dev.MetaJournalHead(ctx)
	if err != nil {
		return coreerr.Wrap(coreerr.IoError, "journal: get meta journal head", err)
	}

	p.mu.Lock()
	if head <= p.headSeq {
		p.mu.Unlock()
		return nil
	}
	advanced := ondisk.LPA(head - p.headSeq)
	p.headSeq = head
	p.available += advanced
	if p.available > p.total {
		p.available = p.total
	}

	var applied []pendingTx
	for len(p.pending) > 0 && p.pending[0].endSeq <= head {
		applied = append(applied, p.pending[0])
		p.pending = p.pending[1:]
	}
	p.mu.Unlock()

	for _, ptx := range applied {
		for _, e := range ptx.sit {
			p.sit.AddSSDVersion(e.Segment)
		}
		for _, e := range ptx.nat {
			p.nat.AddSSDVersion(e.Nid)
		}
		p.log.Infof("journal: transaction %d (trace %s) confirmed applied at head %d", ptx.txID, ptx.traceID, head)
		if p.onApplied != nil {
			p.onApplied(ptx.txID)
		}
	}
	return nil
}
