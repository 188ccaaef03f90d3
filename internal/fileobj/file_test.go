package fileobj

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hscfs-project/hscfs-core/internal/clock"
	"github.com/hscfs-project/hscfs-core/internal/dentrycache"
	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/filemap"
	"github.com/hscfs-project/hscfs-core/internal/nodecache"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
	"github.com/hscfs-project/hscfs-core/internal/sitnat"
)

type noopSink struct{}

func (noopSink) RecordSit(ondisk.SegID, ondisk.SitEntry) {}
func (noopSink) RecordNat(ondisk.Nid, ondisk.NatEntry)   {}

type fakeAllocator struct {
	nextNid ondisk.Nid
	nextLPA ondisk.LPA
}

func (a *fakeAllocator) AllocNid(context.Context, ondisk.Ino) (ondisk.Nid, error) {
	a.nextNid++
	return a.nextNid, nil
}

func (a *fakeAllocator) AllocNodeLPA(context.Context) (ondisk.LPA, error) {
	a.nextLPA++
	return a.nextLPA, nil
}

func (a *fakeAllocator) AllocDataLPA(context.Context) (ondisk.LPA, error) {
	a.nextLPA++
	return a.nextLPA, nil
}

const testIno = ondisk.Ino(5)

func newTestFile(t *testing.T) (*File, *nodecache.Cache) {
	t.Helper()
	ctx := context.Background()
	dev := device.NewFakeDevice()
	nat := sitnat.NewNatCache(dev, 2000, noopSink{}, 64)
	nodes := nodecache.NewCache(64)

	root := &nodecache.Entry{Nid: ondisk.Nid(testIno), ParentNid: ondisk.InvalidNid, IsInode: true}
	nodes.Add(root)
	require.NoError(t, nat.Set(ctx, ondisk.Nid(testIno), ondisk.NatEntry{BlockAddr: 1}))

	resolver := filemap.NewResolver(dev, nat, nodes)
	d := &dentrycache.Dentry{Key: dentrycache.Key{DirIno: 1, Name: "f"}, Ino: testIno}
	f := newFile(testIno, d, dev, resolver, nodes, &fakeAllocator{}, 64, clock.RealClock{})
	require.NoError(t, f.ReadMeta(ctx))
	return f, nodes
}

// newTestCacheAndHandle builds a fully wired Cache (rather than a bare
// *File) for tests that exercise Handle's dirty-set bookkeeping.
func newTestCacheAndHandle(t *testing.T) (*Cache, Handle) {
	t.Helper()
	ctx := context.Background()
	dev := device.NewFakeDevice()
	nat := sitnat.NewNatCache(dev, 2000, noopSink{}, 64)
	nodes := nodecache.NewCache(64)

	root := &nodecache.Entry{Nid: ondisk.Nid(testIno), ParentNid: ondisk.InvalidNid, IsInode: true}
	nodes.Add(root)
	require.NoError(t, nat.Set(ctx, ondisk.Nid(testIno), ondisk.NatEntry{BlockAddr: 1}))

	dentries := dentrycache.NewCache(64)
	c := NewCache(64, dev, nat, nodes, dentries, &fakeAllocator{}, 64, clock.RealClock{})
	d := &dentrycache.Dentry{Key: dentrycache.Key{DirIno: 1, Name: "f"}, Ino: testIno}
	h := c.Add(testIno, d)
	require.NoError(t, h.File().ReadMeta(ctx))
	return c, h
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	f, _ := newTestFile(t)
	ctx := context.Background()

	data := []byte("hello, hscfs")
	n, err := f.Write(ctx, data, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, uint64(len(data)), f.curSize())

	buf := make([]byte, len(data))
	n, err = f.Read(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf)
}

func TestReadPastEOFReturnsZero(t *testing.T) {
	f, _ := newTestFile(t)
	buf := make([]byte, 16)
	n, err := f.Read(context.Background(), buf, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReadHoleReturnsZeroedBytes(t *testing.T) {
	f, _ := newTestFile(t)
	ctx := context.Background()

	_, err := f.Write(ctx, []byte("x"), ondisk.BlockSize*2)
	require.NoError(t, err)

	buf := make([]byte, ondisk.BlockSize)
	n, err := f.Read(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, ondisk.BlockSize, n)
	for _, b := range buf {
		assert.Equal(t, byte(0), b)
	}
}

func TestWriteSpanningMultipleBlocksAllocatesDistinctLpas(t *testing.T) {
	f, _ := newTestFile(t)
	ctx := context.Background()

	data := make([]byte, ondisk.BlockSize*2+10)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := f.Write(ctx, data, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	buf := make([]byte, len(data))
	n, err = f.Read(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf)
}

func TestTruncateShrinkReportsChange(t *testing.T) {
	f, _ := newTestFile(t)
	ctx := context.Background()

	_, err := f.Write(ctx, make([]byte, ondisk.BlockSize*3), 0)
	require.NoError(t, err)

	changed, err := f.Truncate(ctx, ondisk.BlockSize)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, uint64(ondisk.BlockSize), f.curSize())

	changed, err = f.Truncate(ctx, ondisk.BlockSize)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMarkDirtyOncePerEpoch(t *testing.T) {
	f, _ := newTestFile(t)
	assert.True(t, f.MarkDirty())
	assert.False(t, f.MarkDirty())
	f.clearDirty()
	assert.True(t, f.MarkDirty())
}
