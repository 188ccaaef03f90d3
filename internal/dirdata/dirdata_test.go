package dirdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hscfs-project/hscfs-core/internal/device"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

func TestFetchReadsThroughOnMiss(t *testing.T) {
	dev := device.NewFakeDevice()
	c := NewCache(dev, 16)
	ctx := context.Background()

	e, err := c.Fetch(ctx, 5, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, ondisk.LPA(100), e.LPA)

	e.Block.SetSlotOccupied(3)
	c.MarkDirty(e)
	require.NoError(t, c.Flush(ctx))
	c.Put(e)

	// a second cache instance reading the same device sees the flush.
	c2 := NewCache(dev, 16)
	e2, err := c2.Fetch(ctx, 5, 0, 100)
	require.NoError(t, err)
	assert.True(t, e2.Block.SlotOccupied(3))
	c2.Put(e2)
}
