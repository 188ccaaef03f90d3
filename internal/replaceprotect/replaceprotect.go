// Package replaceprotect keeps a committed transaction's cache entries
// pinned against eviction until the SSD has confirmed it applied that
// transaction's journal, then releases them. Grounded on
// replace_protect.hh/.cc's transaction_replace_protect_record and
// replace_protect_manager: the original keeps a separate SSD-version
// counter per cache entry, bumped once its owning transaction's
// protect task runs; this package folds that into the single
// reference-count discipline internal/nodecache and internal/dentrycache
// already use, so "release the extra pin this transaction's dirty write
// was holding" is just one more Put call on the same handle the
// transaction took at commit time.
package replaceprotect

import (
	"fmt"
	"sync"

	"github.com/hscfs-project/hscfs-core/internal/dentrycache"
	"github.com/hscfs-project/hscfs-core/internal/hscfslog"
	"github.com/hscfs-project/hscfs-core/internal/nodecache"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
	"github.com/hscfs-project/hscfs-core/internal/server"
	"github.com/hscfs-project/hscfs-core/internal/sitnat"
)

// Record is one transaction's replace-protect bookkeeping: the dirty
// cache handles it is holding a reference on, and the SIT/NAT entries
// that need their SSD-version pin released once the transaction's
// journal has been applied. Uncommitted node/data segments are carried
// for visibility only; this package's Device contract has no command to
// report them to SSD-side garbage collection separately from what the
// journal's SIT validate bits already communicate, so they are not acted
// on further here (see DESIGN.md).
type Record struct {
	TxID             uint64
	DirtyNodes       []*nodecache.Entry
	DirtyDentries    []*dentrycache.Dentry
	SitEntries       []ondisk.SitJournalEntry
	NatEntries       []ondisk.NatJournalEntry
	UncommitNodeSegs []ondisk.SegID
	UncommitDataSegs []ondisk.SegID
}

// Manager tracks transactions whose journal has been committed but not
// yet confirmed applied by the SSD (trp_list), and the subset currently
// running their protect task (protect_processing_tx). It posts each
// protect task onto the filesystem's shared server.Server rather than
// running a worker of its own, the same way the original posts a
// replace_protect_task closure onto fs_manager's server_thread.
type Manager struct {
	nodes    *nodecache.Cache
	dentries *dentrycache.Cache
	sit      *sitnat.SitCache
	nat      *sitnat.NatCache
	log      *hscfslog.Logger
	srv      *server.Server

	mu      sync.Mutex
	pending []*Record

	wgPending    sync.WaitGroup
	wgProcessing sync.WaitGroup
}

// New returns a Manager that posts its protect tasks onto srv.
func New(nodes *nodecache.Cache, dentries *dentrycache.Cache, sit *sitnat.SitCache, nat *sitnat.NatCache, log *hscfslog.Logger, srv *server.Server) *Manager {
	return &Manager{nodes: nodes, dentries: dentries, sit: sit, nat: nat, log: log, srv: srv}
}

// AddTx records r as committed but not yet applied. Must be called
// before the owning journal container is handed to the commit queue,
// matching the original's "必须在日志提交前调用" contract.
func (m *Manager) AddTx(r *Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, r)
	m.wgPending.Add(1)
}

// NotifyCpltTx reports that cpltTxID's journal has been applied by the
// SSD. Transactions are notified in commit order, matching the
// original's "日志管理层一定是按照提交顺序进行通知" assumption.
func (m *Manager) NotifyCpltTx(cpltTxID uint64) error {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return fmt.Errorf("replaceprotect: notify with empty trp_list")
	}
	r := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()

	if r.TxID != cpltTxID {
		panic(fmt.Sprintf("replaceprotect: out-of-order completion notify: head tx %d, notified %d", r.TxID, cpltTxID))
	}
	m.wgPending.Done()
	m.wgProcessing.Add(1)
	m.srv.PostTask(func() {
		m.process(r)
		m.wgProcessing.Done()
	})
	return nil
}

func (m *Manager) process(r *Record) {
	for _, e := range r.DirtyNodes {
		m.nodes.Put(e)
	}
	for _, d := range r.DirtyDentries {
		m.dentries.Put(d)
	}
	for _, e := range r.SitEntries {
		m.sit.AddSSDVersion(e.Segment)
	}
	for _, e := range r.NatEntries {
		m.nat.AddSSDVersion(e.Nid)
	}
	if len(r.UncommitNodeSegs) > 0 || len(r.UncommitDataSegs) > 0 {
		m.log.Infof("replaceprotect: tx %d retired %d node segments, %d data segments", r.TxID, len(r.UncommitNodeSegs), len(r.UncommitDataSegs))
	}
}

// WaitAllProtectTaskCplt blocks until every committed-but-unapplied
// transaction has been notified and its protect task has finished.
// Callers must ensure no other goroutine is still committing journals
// when this is called, matching the original's shutdown-time contract.
func (m *Manager) WaitAllProtectTaskCplt() {
	m.wgPending.Wait()
	m.wgProcessing.Wait()
}
