// Package fsmanager is the filesystem core's root object: the
// combination container that owns every cache, the allocator, the
// journal pipeline, and the background worker threads, and exposes the
// POSIX-shaped operation surface (open/close/read/write/lseek/mkdir/
// rmdir/unlink/link/fsync) that a caller above the core drives a file
// system through. Grounded on original_source/inc/fs/fs_manager.hh and
// src/fs/fs_manager.cc's file_system_manager: the combination container
// of super_manager, the five block caches, file_obj_cache, fd_array,
// the running journal container, replace_protect_manager and
// server_thread.
package fsmanager

import (
	"context"
	"sync"

	"github.com/jacobsa/syncutil"

	"github.com/hscfs-project/hscfs-core/internal/clock"
	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/dentrycache"
	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/dirdata"
	"github.com/hscfs-project/hscfs-core/internal/fileobj"
	"github.com/hscfs-project/hscfs-core/internal/filemap"
	"github.com/hscfs-project/hscfs-core/internal/hscfslog"
	"github.com/hscfs-project/hscfs-core/internal/journal"
	"github.com/hscfs-project/hscfs-core/internal/nodecache"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
	"github.com/hscfs-project/hscfs-core/internal/replaceprotect"
	"github.com/hscfs-project/hscfs-core/internal/server"
	"github.com/hscfs-project/hscfs-core/internal/sitnat"
	"github.com/hscfs-project/hscfs-core/internal/supermanager"
)

// Config supplies every soft cache-size cap and journal-ring geometry
// Root needs at bootstrap. Defaults mirror file_system_manager's own
// static field initializers.
type Config struct {
	Device device.Device

	DentryCacheSize  int
	NodeCacheSize    int
	DirDataCacheSize int
	SitCacheSize     int
	NatCacheSize     int
	FileCacheSize    int
	PageCacheSize    int
	FdTableSize      int

	JournalStartLPA      ondisk.LPA
	JournalEndLPA        ondisk.LPA
	CommitQueueCapacity  int

	Log *hscfslog.Logger
	// Clock sources atime/mtime stamping and the journal apply worker's
	// head-poll timer. Defaults to clock.RealClock{}; tests substitute
	// clock.FakeClock or clock.SimulatedClock to drive time deterministically.
	Clock clock.Clock
}

func (c *Config) setDefaults() {
	if c.DentryCacheSize == 0 {
		c.DentryCacheSize = 128
	}
	if c.NodeCacheSize == 0 {
		c.NodeCacheSize = 32
	}
	if c.DirDataCacheSize == 0 {
		c.DirDataCacheSize = 64
	}
	if c.SitCacheSize == 0 {
		c.SitCacheSize = 64
	}
	if c.NatCacheSize == 0 {
		c.NatCacheSize = 64
	}
	if c.FileCacheSize == 0 {
		c.FileCacheSize = 32
	}
	if c.PageCacheSize == 0 {
		c.PageCacheSize = 32
	}
	if c.FdTableSize == 0 {
		c.FdTableSize = 512
	}
	if c.CommitQueueCapacity == 0 {
		c.CommitQueueCapacity = 16
	}
	if c.Log == nil {
		c.Log = hscfslog.New("fsmanager")
	}
	if c.Clock == nil {
		c.Clock = clock.RealClock{}
	}
}

// Root is the file_system_manager equivalent. Exported fields mirror the
// original's get_*() accessors; internal/fsmanager's own operations are
// the only caller that should ever need more than one of them at once,
// so they stay exported for fsmanager-internal files (path.go, ops.go,
// fdtable.go) rather than wrapped behind a second layer of getters.
type Root struct {
	dev device.Device
	log *hscfslog.Logger
	clk clock.Clock

	// fsFreezeLock is the outermost lock: every operation holds it for
	// read, and only Shutdown's quiesce phase takes it for write.
	fsFreezeLock sync.RWMutex
	// fsMetaLock serializes every metadata-mutating operation below the
	// freeze lock, matching the original's single global metadata mutex.
	// It checks Root's cross-cache invariants on every release, the same
	// defense-in-depth gcsfuse applies to its own root lock.
	fsMetaLock syncutil.InvariantMutex

	Super    *ondisk.SuperBlock
	SitCache *sitnat.SitCache
	NatCache *sitnat.NatCache
	Nodes    *nodecache.Cache
	DirData  *dirdata.Cache
	Dentries *dentrycache.Cache
	Alloc    *supermanager.Manager
	Files    *fileobj.Cache

	Fds *fdTable

	journal   *journal.Container
	queue     *journal.CommitQueue
	processor *journal.Processor
	rp        *replaceprotect.Manager
	srv       *server.Server

	unrecoverable bool
}

// New bootstraps a Root against cfg.Device: reads the super block,
// constructs every cache and the journal pipeline, seeds the root
// directory's dentry, and starts the apply worker and the shared
// server thread. Matches file_system_manager::init's sequence.
func New(ctx context.Context, cfg Config) (*Root, error) {
	cfg.setDefaults()

	super := &ondisk.SuperBlock{}
	buf := make([]byte, ondisk.BlockSize)
	if err := cfg.Device.ReadBlock(ctx, 0, buf); err != nil {
		return nil, coreerr.Wrap(coreerr.IoError, "fsmanager: read super block", err)
	}
	super.Decode(buf)

	r := &Root{dev: cfg.Device, log: cfg.Log, clk: cfg.Clock, Super: super}
	r.fsMetaLock = syncutil.NewInvariantMutex(r.checkInvariants)

	jc := journal.NewContainer()
	r.journal = jc

	r.SitCache = sitnat.NewSitCache(cfg.Device, ondisk.LPA(super.SitBlkAddr), jc, cfg.SitCacheSize)
	r.NatCache = sitnat.NewNatCache(cfg.Device, ondisk.LPA(super.NatBlkAddr), jc, cfg.NatCacheSize)
	r.Nodes = nodecache.NewCache(cfg.NodeCacheSize)
	r.DirData = dirdata.NewCache(cfg.Device, cfg.DirDataCacheSize)
	r.Dentries = dentrycache.NewCache(cfg.DentryCacheSize)
	r.Alloc = supermanager.New(super, r.SitCache, r.NatCache, jc)
	r.Files = fileobj.NewCache(cfg.FileCacheSize, cfg.Device, r.NatCache, r.Nodes, r.Dentries, r.Alloc, cfg.PageCacheSize, cfg.Clock)
	r.Fds = newFdTable(cfg.FdTableSize)

	r.queue = journal.NewCommitQueue(cfg.CommitQueueCapacity)
	r.processor = journal.NewProcessor(cfg.Device, r.queue, cfg.JournalStartLPA, cfg.JournalEndLPA, r.SitCache, r.NatCache, cfg.Log, cfg.Clock)
	r.srv = server.New(256)
	r.rp = replaceprotect.New(r.Nodes, r.Dentries, r.SitCache, r.NatCache, cfg.Log, r.srv)
	r.processor.SetOnApplied(func(txID uint64) {
		if err := r.rp.NotifyCpltTx(txID); err != nil {
			r.log.Errorf("fsmanager: notify completed tx %d: %v", txID, err)
		}
	})

	r.seedRootDentry()

	r.srv.Start(ctx)
	r.processor.Start(ctx)
	return r, nil
}

func (r *Root) seedRootDentry() {
	rootIno := ondisk.Ino(r.Super.RootIno)
	key := dentrycache.Key{DirIno: rootIno, Name: "/"}
	r.Dentries.Add(&dentrycache.Dentry{
		Key:       key,
		Ino:       rootIno,
		FileType:  ondisk.FTDir,
		ParentKey: key,
		State:     ondisk.DentryValid,
	})
}

// checkState mirrors check_state: returns a NotRecoverable error once
// the core has latched into the unrecoverable state.
func (r *Root) checkState() error {
	if r.unrecoverable {
		return coreerr.New(coreerr.NotRecoverable, "fsmanager: filesystem is in an unrecoverable state")
	}
	return nil
}

func (r *Root) setUnrecoverable() { r.unrecoverable = true }

// checkInvariants panics if Root's cache wiring is missing the pieces
// every metadata operation assumes are present. Run by fsMetaLock on
// every Unlock.
func (r *Root) checkInvariants() {
	if r.Super == nil || r.SitCache == nil || r.NatCache == nil || r.Files == nil {
		panic("fsmanager: root cache wiring incomplete")
	}
}

// resolver returns a fresh filemap.Resolver over the root's node cache
// and NAT, the same lightweight, stateless object every operation in
// this package constructs on demand rather than sharing one.
func (r *Root) resolver() *filemap.Resolver {
	return filemap.NewResolver(r.dev, r.NatCache, r.Nodes)
}

// Shutdown quiesces the filesystem: it stops accepting new operations
// under an exclusive freeze lock, flushes every dirty cache to a final
// journal transaction, waits for that transaction's replace-protect
// task to finish, then stops the apply worker and the server thread.
// Matches write_back_all_dirty_sync followed by fini's teardown order.
func (r *Root) Shutdown(ctx context.Context) error {
	r.fsFreezeLock.Lock()
	defer r.fsFreezeLock.Unlock()

	r.fsMetaLock.Lock()
	err := r.writeBackAllDirtyLocked(ctx)
	r.fsMetaLock.Unlock()

	r.rp.WaitAllProtectTaskCplt()
	if perr := r.processor.Stop(); perr != nil && err == nil {
		err = perr
	}
	if serr := r.srv.Stop(); serr != nil && err == nil {
		err = serr
	}
	return err
}
