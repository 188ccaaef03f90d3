package journal

import (
	"context"
	"sync/atomic"
)

// CommitQueue is the FIFO handoff between transactions committing
// journal containers and the background worker that packs and writes
// them to the SSD in commit order. Grounded on journal_process_env's
// commit_queue/mtx/cond shape, reworked as a buffered channel plus an
// atomic transaction counter so callers get context cancellation for
// free instead of needing a condition variable.
type CommitQueue struct {
	ch       chan *Container
	nextTxID atomic.Uint64
}

// NewCommitQueue returns a queue holding up to capacity uncommitted
// containers before Commit blocks.
func NewCommitQueue(capacity int) *CommitQueue {
	return &CommitQueue{ch: make(chan *Container, capacity)}
}

// PeekNextTxID returns the id the next Commit call will assign, without
// consuming it. Safe only when the caller serializes its own commits
// (e.g. behind a single metadata lock), so that nothing can Commit
// between a Peek and the matching Commit and shift the id out from
// under a replace-protect record registered against it.
func (q *CommitQueue) PeekNextTxID() uint64 { return q.nextTxID.Load() }

// Commit assigns c the next transaction id and enqueues it for the
// background worker, blocking if the queue is full until ctx is done.
func (q *CommitQueue) Commit(ctx context.Context, c *Container) (uint64, error) {
	txID := q.nextTxID.Add(1) - 1
	c.setTxID(txID)
	select {
	case q.ch <- c:
		return txID, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Pop blocks until a container is available or ctx is done.
func (q *CommitQueue) Pop(ctx context.Context) (*Container, error) {
	select {
	case c := <-q.ch:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
