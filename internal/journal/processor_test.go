package journal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hscfs-project/hscfs-core/internal/clock"
	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/hscfslog"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
	"github.com/hscfs-project/hscfs-core/internal/sitnat"
)

func TestProcessorAppliesCommittedContainer(t *testing.T) {
	ctx := context.Background()
	dev := device.NewFakeDevice()
	cacheSink := NewContainer() // sit/nat caches need a JournalSink; their own records are unused here

	sit := sitnat.NewSitCache(dev, 0, cacheSink, 16)
	nat := sitnat.NewNatCache(dev, 100, cacheSink, 16)

	queue := NewCommitQueue(4)
	proc := NewProcessor(dev, queue, 200, 210, sit, nat, hscfslog.Discard(), clock.RealClock{})

	c := NewContainer()
	c.RecordNat(7, ondisk.NatEntry{BlockAddr: 42})

	proc.Start(ctx)
	txID, err := queue.Commit(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), txID)

	require.Eventually(t, func() bool {
		buf := make([]byte, ondisk.BlockSize)
		_ = dev.ReadBlock(ctx, 200, buf)
		var hdr ondisk.JournalRecordHeader
		hdr.Decode(buf)
		return hdr.Type == ondisk.JournalRecordNat
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		head, err := dev.MetaJournalHead(ctx)
		return err == nil && head > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, proc.Stop())
}

func TestProcessorNotifiesOnlyAfterHeadConfirmsApply(t *testing.T) {
	ctx := context.Background()
	dev := device.NewFakeDevice()
	cacheSink := NewContainer()

	sit := sitnat.NewSitCache(dev, 0, cacheSink, 16)
	nat := sitnat.NewNatCache(dev, 100, cacheSink, 16)

	queue := NewCommitQueue(4)
	proc := NewProcessor(dev, queue, 200, 210, sit, nat, hscfslog.Discard(), clock.RealClock{})

	var notified []uint64
	var mu sync.Mutex
	proc.SetOnApplied(func(txID uint64) {
		mu.Lock()
		notified = append(notified, txID)
		mu.Unlock()
	})

	c := NewContainer()
	c.RecordNat(7, ondisk.NatEntry{BlockAddr: 42})

	proc.Start(ctx)
	_, err := queue.Commit(ctx, c)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notified) == 1 && notified[0] == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, proc.Stop())
}
