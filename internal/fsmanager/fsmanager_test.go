package fsmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/hscfslog"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// test layout constants for the fake device image newTestRoot builds.
// Chosen to keep every region non-overlapping without needing a real
// mkfs: super block at 0, SIT/NAT tables in the next two blocks, the
// root inode and its two (pre-materialized, empty) bucket blocks just
// above that, and the main data/node area starting comfortably past
// every fixed block so supermanager's segment arithmetic never collides
// with them.
const (
	testSitBlkAddr  = 1
	testNatBlkAddr  = 2
	testRootInoLPA  = 50
	testRootBucket0 = 60
	testRootBucket1 = 61
	testMainBlkAddr = 100
	testRootIno     = ondisk.Ino(2)
	testJournalLPA0 = 5000
	testJournalLPA1 = 6000
)

// newTestRoot builds a *Root against a fresh FakeDevice pre-seeded with a
// minimal but internally consistent image: a super block, an empty root
// directory inode with its level-0 bucket blocks already materialized,
// and a free-nid chain long enough for the handful of inodes a test
// creates. It stands in for the mkfs step this module does not itself
// implement (see DESIGN.md's internal/directory (InitEmpty) entry).
func newTestRoot(t *testing.T) (*Root, *device.FakeDevice) {
	t.Helper()
	ctx := context.Background()
	dev := device.NewFakeDevice()

	super := &ondisk.SuperBlock{
		Magic:       ondisk.SuperBlockMagic,
		SitBlkAddr:  testSitBlkAddr,
		NatBlkAddr:  testNatBlkAddr,
		MainBlkAddr: testMainBlkAddr,
		RootIno:     uint32(testRootIno),

		CurrentNodeSegmentID: 1,
		CurrentDataSegmentID: 2,
		NextFreeNid:          3,
	}
	buf := make([]byte, ondisk.BlockSize)
	super.Encode(buf)
	require.NoError(t, dev.WriteBlock(ctx, 0, buf))

	rootInode := &ondisk.Inode{
		Ino:      testRootIno,
		FileType: ondisk.FTDir,
		Nlink:    1,
	}
	rootInode.Direct[0] = testRootBucket0
	rootInode.Direct[1] = testRootBucket1
	rootInode.Footer = ondisk.NodeFooter{Nid: ondisk.Nid(testRootIno), Ino: testRootIno}
	inodeBuf := make([]byte, ondisk.BlockSize)
	rootInode.Encode(inodeBuf)
	require.NoError(t, dev.WriteBlock(ctx, testRootInoLPA, inodeBuf))

	// seed the NAT block directly (ahead of fsmanager.New reading it)
	// with the root's own entry and a free-nid chain for test inodes.
	natBuf := make([]byte, ondisk.BlockSize)
	rootNat := ondisk.NatEntry{BlockAddr: testRootInoLPA}
	rootNat.Encode(natBuf[int(testRootIno)*ondisk.NatEntrySize:])
	const lastFreeNid = 200
	for nid := ondisk.Nid(3); nid <= lastFreeNid; nid++ {
		next := nid + 1
		if nid == lastFreeNid {
			next = ondisk.InvalidNid
		}
		e := ondisk.NatEntry{BlockAddr: ondisk.InvalidLPA, NextFreeNid: next}
		e.Encode(natBuf[int(nid)*ondisk.NatEntrySize:])
	}
	require.NoError(t, dev.WriteBlock(ctx, testNatBlkAddr, natBuf))

	cfg := Config{
		Device:              dev,
		JournalStartLPA:     testJournalLPA0,
		JournalEndLPA:       testJournalLPA1,
		CommitQueueCapacity: 16,
		Log:                 hscfslog.Discard(),
	}
	root, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Shutdown(context.Background()) })
	return root, dev
}

func TestNewSeedsRootDentry(t *testing.T) {
	root, _ := newTestRoot(t)
	d := root.rootDentry()
	require.NotNil(t, d)
	require.Equal(t, testRootIno, d.Ino)
	require.Equal(t, ondisk.FTDir, d.FileType)
}
