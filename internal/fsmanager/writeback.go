package fsmanager

import (
	"context"

	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/nodecache"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
	"github.com/hscfs-project/hscfs-core/internal/replaceprotect"
)

// writeBackAllDirtyLocked flushes every dirty node block, directory data
// block, SIT/NAT entry and file object to a single journal transaction,
// commits it, and records the transaction's replace-protect bookkeeping
// so the affected cache entries stay pinned until the SSD confirms it
// applied the journal. Callers must hold fsMetaLock. Grounded on
// write_back_helper::write_meta_back_sync and do_write_back_async: a
// dirty node is relocated to a freshly allocated out-of-place LPA, its
// old LPA (if any) invalidated and the new one validated in the SIT, and
// its NAT entry repointed, all before the block itself is written.
// Directory data, by contrast, is written back in place by
// internal/dirdata.Cache.Flush, without the out-of-place discipline the
// node cache follows.
func (r *Root) writeBackAllDirtyLocked(ctx context.Context) error {
	if err := r.checkState(); err != nil {
		return err
	}

	mainBase := ondisk.LPA(r.Super.MainBlkAddr)
	dirtyNodes := r.Nodes.DirtyList()
	buf := make([]byte, ondisk.BlockSize)

	for _, e := range dirtyNodes {
		if err := r.relocateNodeLocked(ctx, e, mainBase, buf); err != nil {
			r.setUnrecoverable()
			return err
		}
	}
	r.Nodes.ClearDirtyList()

	if err := r.DirData.Flush(ctx); err != nil {
		r.setUnrecoverable()
		return err
	}

	dirtyFiles := r.Files.DirtyFiles()
	for _, h := range dirtyFiles {
		r.Files.ClearDirty(h.File().Ino)
	}

	if err := r.SitCache.Flush(ctx); err != nil {
		r.setUnrecoverable()
		return coreerr.Wrap(coreerr.IoError, "fsmanager: flush SIT cache", err)
	}
	if err := r.NatCache.Flush(ctx); err != nil {
		r.setUnrecoverable()
		return coreerr.Wrap(coreerr.IoError, "fsmanager: flush NAT cache", err)
	}

	if len(dirtyNodes) == 0 {
		return nil
	}

	jc := r.journal
	// AddTx must run before the container reaches the queue: the apply
	// worker may finish it and call back into replaceprotect before
	// Commit even returns here, and NotifyCpltTx requires its record
	// already be pending. fsMetaLock, held by every caller of this
	// method, serializes commits, so the id Commit assigns is guaranteed
	// to be the one just peeked.
	txID := r.queue.PeekNextTxID()
	r.rp.AddTx(&replaceprotect.Record{
		TxID:       txID,
		DirtyNodes: dirtyNodes,
	})
	gotTxID, err := r.queue.Commit(ctx, jc)
	if err != nil {
		r.setUnrecoverable()
		return coreerr.Wrap(coreerr.IoError, "fsmanager: commit journal transaction", err)
	}
	if gotTxID != txID {
		panic("fsmanager: journal commit interleaved with another committer despite fsMetaLock")
	}
	jc.Reset()
	return nil
}

// relocateNodeLocked assigns e an out-of-place LPA if EnsurePath did not
// already stage one, updates e's NAT entry, encodes its content, and
// writes it. AllocNodeLPA already validates the LPA it hands back
// (whether that call happened here or earlier inside EnsurePath's tree
// growth), so this only needs to invalidate the block e is vacating.
func (r *Root) relocateNodeLocked(ctx context.Context, e *nodecache.Entry, mainBase ondisk.LPA, buf []byte) error {
	lpa := e.NewLPA
	if lpa == ondisk.InvalidLPA {
		newLPA, err := r.Alloc.AllocNodeLPA(ctx)
		if err != nil {
			return err
		}
		lpa = newLPA
	}

	if e.OldLPA != ondisk.InvalidLPA {
		if err := r.SitCache.InvalidateLPA(ctx, e.OldLPA, mainBase); err != nil {
			return coreerr.Wrap(coreerr.IoError, "fsmanager: invalidate stale node LPA", err)
		}
	}
	if err := r.NatCache.Set(ctx, e.Nid, ondisk.NatEntry{BlockAddr: lpa}); err != nil {
		return coreerr.Wrap(coreerr.IoError, "fsmanager: update NAT entry", err)
	}

	if e.IsInode {
		e.Inode.Footer = ondisk.NodeFooter{Nid: e.Nid, Ino: e.Inode.Ino}
		e.Inode.Encode(buf)
	} else {
		// The owning ino is not tracked on an indirect/direct node entry
		// (only its parent nid is); NodeFooter.Ino is on-disk-layout
		// fidelity only and no read path in this port decodes it back, so
		// it is left at its zero value here rather than walking the
		// parent chain to recover it.
		e.Node.Footer = ondisk.NodeFooter{Nid: e.Nid}
		e.Node.Encode(buf)
	}
	if err := r.dev.WriteBlock(ctx, uint32(lpa), buf); err != nil {
		return coreerr.Wrap(coreerr.IoError, "fsmanager: write back node block", err)
	}

	e.OldLPA = lpa
	e.NewLPA = ondisk.InvalidLPA
	return nil
}
