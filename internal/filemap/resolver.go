package filemap

import (
	"context"
	"fmt"

	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/nodecache"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
	"github.com/hscfs-project/hscfs-core/internal/sitnat"
)

// NatLocator resolves a nid to the LPA its NAT entry currently points at,
// the seam filemap needs from internal/sitnat without importing the
// whole cache implementation detail.
type NatLocator interface {
	Get(ctx context.Context, nid ondisk.Nid) (ondisk.NatEntry, error)
	Set(ctx context.Context, nid ondisk.Nid, entry ondisk.NatEntry) error
}

var _ NatLocator = (*sitnat.NatCache)(nil)

// Resolver walks a file's index tree to find the data LPA (or a hole) at
// a given block number, consulting the node cache first and falling back
// to a synchronous block read keyed through the NAT, the same miss path
// get_lpa_of_block follows before it would hand off to the SSD's
// file-mapping-search command. This package does not implement that SSD
// offload itself — see internal/device.FileMappingSearch for the
// contract — because exercising it productively requires the caller to
// already know which levels of the path are cold, which only the node
// cache's Get results can tell it.
type Resolver struct {
	dev   device.Device
	nat   NatLocator
	nodes *nodecache.Cache
}

// NewResolver builds a Resolver over the given collaborators.
func NewResolver(dev device.Device, nat NatLocator, nodes *nodecache.Cache) *Resolver {
	return &Resolver{dev: dev, nat: nat, nodes: nodes}
}

// fetchNode returns the cached entry for nid, reading it from its NAT-
// mapped LPA on a cache miss and inserting it under parentNid.
func (r *Resolver) fetchNode(ctx context.Context, nid, parentNid ondisk.Nid, isInode bool) (*nodecache.Entry, error) {
	if e := r.nodes.Get(nid); e != nil {
		return e, nil
	}
	nat, err := r.nat.Get(ctx, nid)
	if err != nil {
		return nil, err
	}
	if nat.BlockAddr == ondisk.InvalidLPA {
		return nil, coreerr.New(coreerr.IoError, fmt.Sprintf("filemap: nid %d has no block address", nid))
	}
	buf := make([]byte, ondisk.BlockSize)
	if err := r.dev.ReadBlock(ctx, uint32(nat.BlockAddr), buf); err != nil {
		return nil, coreerr.Wrap(coreerr.IoError, "filemap: read node block", err)
	}
	e := &nodecache.Entry{Nid: nid, ParentNid: parentNid, OldLPA: nat.BlockAddr, NewLPA: ondisk.InvalidLPA, IsInode: isInode}
	if isInode {
		e.Inode.Decode(buf)
	} else {
		e.Node.Decode(buf)
	}
	r.nodes.Add(e)
	return e, nil
}

// Resolve walks ino's index tree to logical block number blk and returns
// the data LPA stored there (ondisk.InvalidLPA for a hole) along with
// every node-cache entry touched along the path, each holding one
// reference the caller must release with Release.
func (r *Resolver) Resolve(ctx context.Context, ino ondisk.Ino, blk uint64) (ondisk.LPA, []*nodecache.Entry, error) {
	path, ok := GetNodePath(blk)
	if !ok {
		return 0, nil, coreerr.New(coreerr.UserPathInvalid, "filemap: block number out of range")
	}

	inodeEntry, err := r.fetchNode(ctx, ino, ondisk.InvalidNid, true)
	if err != nil {
		return 0, nil, err
	}
	touched := []*nodecache.Entry{inodeEntry}

	if path.Level == 0 {
		return inodeEntry.Inode.Direct[path.Offset[0]], touched, nil
	}

	curNid := inodeEntry.Inode.Nids[path.Offset[0]]
	parentNid := ino
	var cur *nodecache.Entry
	for level := 1; level <= path.Level; level++ {
		if curNid == ondisk.InvalidNid {
			return ondisk.InvalidLPA, touched, nil // hole: index node never allocated
		}
		cur, err = r.fetchNode(ctx, curNid, parentNid, false)
		if err != nil {
			return 0, touched, err
		}
		touched = append(touched, cur)
		if level == path.Level {
			return ondisk.LPA(cur.Node.Entries[path.Offset[level]]), touched, nil
		}
		parentNid = curNid
		curNid = ondisk.Nid(cur.Node.Entries[path.Offset[level]])
	}
	return ondisk.InvalidLPA, touched, nil
}

// InodeEntry returns ino's cached inode block, reading it on a miss, with
// one reference the caller must Release. Used by callers that need the
// inode's metadata fields directly rather than a data block address.
func (r *Resolver) InodeEntry(ctx context.Context, ino ondisk.Ino) (*nodecache.Entry, error) {
	return r.fetchNode(ctx, ino, ondisk.InvalidNid, true)
}

// Release drops the references Resolve acquired.
func (r *Resolver) Release(entries []*nodecache.Entry) {
	for _, e := range entries {
		r.nodes.Put(e)
	}
}
