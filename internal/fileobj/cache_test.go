package fileobj

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddThenGetReturnsSameFile(t *testing.T) {
	c, h := newTestCacheAndHandle(t)
	defer h.Release()

	h2 := c.Get(testIno)
	require.False(t, h2.IsEmpty())
	assert.Same(t, h.File(), h2.File())
	h2.Release()
}

func TestGetMissReturnsEmptyHandle(t *testing.T) {
	c, h := newTestCacheAndHandle(t)
	defer h.Release()

	miss := c.Get(999)
	assert.True(t, miss.IsEmpty())
}

func TestMarkDirtyFilesUnderDirtySetOnce(t *testing.T) {
	c, h := newTestCacheAndHandle(t)
	defer h.Release()

	h.MarkDirty()
	h.MarkDirty()
	assert.Len(t, c.DirtyFiles(), 1)

	c.ClearDirty(testIno)
	assert.Empty(t, c.DirtyFiles())
}

func TestGetFileObjReadsMetaOnMiss(t *testing.T) {
	c, h := newTestCacheAndHandle(t)
	h.Release()
	c.removeFile(h.File())

	h2, err := GetFileObj(context.Background(), c, testIno, nil)
	require.NoError(t, err)
	assert.Equal(t, testIno, h2.File().Ino)
	h2.Release()
}
