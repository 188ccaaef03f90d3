// Package device defines the core's only escape hatch to hardware: a
// Device submits 4 KiB block I/O and the four vendor metadata commands
// the SSD executes on its own firmware (path lookup, file-mapping search,
// meta-journal tail handoff, and apply-head query). Every other package
// in this module talks to storage exclusively through this interface, the
// way the teacher's gcsfuse talks to the backing store exclusively
// through its storage.Bucket interface rather than touching GCS wire
// calls directly.
package device

import "context"

// PathLookupResult is the offloaded directory-walk result the SSD
// returns for path_lookup: the per-level inode numbers resolved so far,
// and the located dentry's position so the caller can read or splice it
// without re-walking.
type PathLookupResult struct {
	PerLevelInos   []uint32
	DentryBlkIdx   uint32
	DentryBitPos   uint32
	ParentNodeLPA  uint32
	ParentDataLPA  uint32
	Resolved       int // number of path components actually resolved
}

// FileMappingResult is the offloaded index-walk result for
// filemapping_search: the chain of node-block LPAs from the inode down to
// (and including, if present) the data block holding blkno.
type FileMappingResult struct {
	NodePageLPA []uint32 // one entry per tree level actually walked
}

// Device is the transport the core uses to reach the SSD. Implementations
// must be safe for concurrent use; the core never serializes access to it
// itself beyond what fs_meta_lock already guarantees for metadata
// mutation.
type Device interface {
	// ReadBlock synchronously reads one 4 KiB block at lpa into buf.
	ReadBlock(ctx context.Context, lpa uint32, buf []byte) error
	// WriteBlock synchronously writes buf (exactly 4 KiB) to lpa.
	WriteBlock(ctx context.Context, lpa uint32, buf []byte) error

	// ReadBlockAsync and WriteBlockAsync behave like their sync
	// counterparts but return a channel receiving the completion error,
	// for callers that want to overlap several block I/Os.
	ReadBlockAsync(ctx context.Context, lpa uint32, buf []byte) <-chan error
	WriteBlockAsync(ctx context.Context, lpa uint32, buf []byte) <-chan error

	// PathLookup offloads a directory walk of depth components of path
	// starting at start_ino to the SSD's firmware.
	PathLookup(ctx context.Context, startIno uint32, path []string, depth int) (PathLookupResult, error)

	// FileMappingSearch offloads an index-tree walk to the SSD's
	// firmware, resolving blkno's node chain (and data block, if
	// returnAllLevels) starting from startNid.
	FileMappingSearch(ctx context.Context, ino uint32, startNid uint32, blkno uint64, returnAllLevels bool) (FileMappingResult, error)

	// UpdateMetaJournalTail hands ownership of nblocks starting at
	// originLPA in the meta-journal ring to the SSD, making them
	// eligible for apply.
	UpdateMetaJournalTail(ctx context.Context, originLPA uint32, nblocks uint32) error

	// MetaJournalHead returns the SSD's current apply position in the
	// meta-journal ring.
	MetaJournalHead(ctx context.Context) (uint64, error)

	// Lifecycle commands, used by mkfs and init shims, never by the
	// core's steady-state operation.
	FsModuleInit(ctx context.Context) error
	FsDBInit(ctx context.Context) error
	FsRecoverFromDB(ctx context.Context) error
	ClearMetaJournal(ctx context.Context) error
	StartApplyJournal(ctx context.Context) error
	StopApplyJournal(ctx context.Context) error
}
