package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hscfs-project/hscfs-core/internal/dentrycache"
	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/dirdata"
	"github.com/hscfs-project/hscfs-core/internal/filemap"
	"github.com/hscfs-project/hscfs-core/internal/nodecache"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
	"github.com/hscfs-project/hscfs-core/internal/sitnat"
)

type noopSink struct{}

func (noopSink) RecordSit(ondisk.SegID, ondisk.SitEntry) {}
func (noopSink) RecordNat(ondisk.Nid, ondisk.NatEntry)   {}

// newTestDirectory wires a Directory over a fake device with a
// single-block root inode whose direct pointers are preallocated so
// Resolve never hits a hole for the low block numbers the bucket
// arithmetic touches at level 0.
func newTestDirectory(t *testing.T, rootIno ondisk.Ino) (*Directory, context.Context) {
	t.Helper()
	ctx := context.Background()
	dev := device.NewFakeDevice()

	nat := sitnat.NewNatCache(dev, 2048, noopSink{}, 64)
	nodes := nodecache.NewCache(64)
	resolver := filemap.NewResolver(dev, nat, nodes)

	inodeLPA := ondisk.LPA(10)
	var inode ondisk.Inode
	inode.Ino = rootIno
	inode.FileType = ondisk.FTDir
	nblk := int(BucketBlockNum(0) * dirBuckets(0))
	for i := 0; i < nblk; i++ {
		inode.Direct[i] = ondisk.LPA(100 + i)
	}
	buf := make([]byte, ondisk.BlockSize)
	inode.Encode(buf)
	require.NoError(t, dev.WriteBlock(ctx, uint32(inodeLPA), buf))
	require.NoError(t, nat.Set(ctx, rootIno, ondisk.NatEntry{BlockAddr: inodeLPA}))

	dd := dirdata.NewCache(dev, 64)
	dc := dentrycache.NewCache(64)
	return New(rootIno, dev, resolver, dd, dc, nodes), ctx
}

func TestCreateThenLookupRoundTrip(t *testing.T) {
	d, ctx := newTestDirectory(t, 2)
	parent := dentrycache.Key{DirIno: 2, Name: "."}

	created, err := d.Create(ctx, "hello.txt", ondisk.FTRegFile, 42, 0, parent)
	require.NoError(t, err)
	require.NotNil(t, created)
	d.dentries.Put(created)

	res, err := d.Lookup(ctx, "hello.txt", 0)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, ondisk.Ino(42), res.Ino)
	assert.Equal(t, ondisk.FTRegFile, res.FileType)
}

func TestLookupMissingNameNotFound(t *testing.T) {
	d, ctx := newTestDirectory(t, 2)
	res, err := d.Lookup(ctx, "nope", 0)
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestRemoveThenLookupMisses(t *testing.T) {
	d, ctx := newTestDirectory(t, 2)
	parent := dentrycache.Key{DirIno: 2, Name: "."}

	created, err := d.Create(ctx, "gone.txt", ondisk.FTRegFile, 7, 0, parent)
	require.NoError(t, err)

	require.NoError(t, d.Remove(ctx, created))
	d.dentries.Put(created)
	d.dentries.Remove(created.Key)

	res, err := d.Lookup(ctx, "gone.txt", 0)
	require.NoError(t, err)
	assert.False(t, res.Found)
}
