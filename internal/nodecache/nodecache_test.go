package nodecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

func TestAddBumpsParentRefcount(t *testing.T) {
	c := NewCache(16)
	root := &Entry{Nid: 1, ParentNid: ondisk.InvalidNid, IsInode: true}
	c.Add(root)

	child := &Entry{Nid: 2, ParentNid: 1}
	c.Add(child)

	// root is referenced by its own Add (1) plus the child's Add bump
	// (1) = 2; dropping the child's own handle makes only the child
	// evictable, while root stays pinned.
	c.Put(child)
	assert.Equal(t, 1, c.cm.NumCanReplace())
}

func TestEntryEvictedOnlyWhenUnreferenced(t *testing.T) {
	c := NewCache(16)
	e := &Entry{Nid: 5, ParentNid: ondisk.InvalidNid}
	c.Add(e)
	assert.Equal(t, 0, c.cm.NumCanReplace())

	c.Put(e)
	assert.Equal(t, 1, c.cm.NumCanReplace())
}

func TestMarkDirtyRequiresReference(t *testing.T) {
	c := NewCache(16)
	e := &Entry{Nid: 5}
	c.Add(e)
	c.MarkDirty(e)
	assert.Equal(t, StateDirty, e.State())
	assert.Len(t, c.DirtyList(), 1)

	c.MarkDirty(e) // idempotent
	assert.Len(t, c.DirtyList(), 1)

	c.ClearDirtyList()
	assert.Equal(t, StateUpToDate, e.State())
	assert.Empty(t, c.DirtyList())
}

func TestMarkDirtyPanicsWithoutReference(t *testing.T) {
	c := NewCache(16)
	e := &Entry{Nid: 5, refCount: 0}
	require.Panics(t, func() { c.MarkDirty(e) })
}
