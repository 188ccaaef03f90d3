package pagecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

func TestGetCreatesInvalidPlaceholderOnMiss(t *testing.T) {
	c := NewCache(16)
	e := c.Get(3)
	require.NotNil(t, e)
	assert.Equal(t, StateInvalid, e.State())
	assert.Equal(t, ondisk.InvalidLPA, e.OriginLPA)
	c.Put(e)
}

func TestGetReturnsSameEntryOnSecondCall(t *testing.T) {
	c := NewCache(16)
	e1 := c.Get(3)
	e2 := c.Get(3)
	assert.Same(t, e1, e2)
	c.Put(e1)
	c.Put(e2)
}

func TestMarkDirtyThenClearResetsState(t *testing.T) {
	c := NewCache(16)
	e := c.Get(0)
	e.CommitLPA = 42
	c.MarkDirty(e)
	assert.Equal(t, StateDirty, e.State())
	assert.Len(t, c.DirtyList(), 1)

	c.ClearDirtyList()
	assert.Equal(t, StateUpToDate, e.State())
	assert.Equal(t, ondisk.LPA(42), e.OriginLPA)
	assert.Equal(t, ondisk.InvalidLPA, e.CommitLPA)
	assert.Empty(t, c.DirtyList())
	c.Put(e)
}

func TestTruncateRemovesPagesPastCutoffOnlyWhenUnreferenced(t *testing.T) {
	c := NewCache(16)
	keep := c.Get(0)
	drop := c.Get(5)
	c.Put(drop) // unreferenced, eligible for truncation removal

	c.Truncate(0, false)
	assert.Equal(t, 1, c.Len())
	c.Put(keep)
}

func TestMarkUpToDateIsNoopOnceDirty(t *testing.T) {
	c := NewCache(16)
	e := c.Get(0)
	c.MarkDirty(e)
	e.MarkUpToDate()
	assert.Equal(t, StateDirty, e.State())
	c.Put(e)
}

func TestMarkDirtyOnUnreferencedEntryPanics(t *testing.T) {
	c := NewCache(16)
	e := c.Get(0)
	c.Put(e)
	assert.Panics(t, func() { c.MarkDirty(e) })
}
