package filemap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

func TestGetNodePathInlineDirect(t *testing.T) {
	p, ok := GetNodePath(0)
	assert.True(t, ok)
	assert.Equal(t, 0, p.Level)
	assert.EqualValues(t, 0, p.Offset[0])

	p, ok = GetNodePath(directIndex - 1)
	assert.True(t, ok)
	assert.Equal(t, 0, p.Level)
	assert.EqualValues(t, directIndex-1, p.Offset[0])
}

func TestGetNodePathDirect1Boundary(t *testing.T) {
	p, ok := GetNodePath(directIndex)
	assert.True(t, ok)
	assert.Equal(t, 1, p.Level)
	assert.EqualValues(t, ondisk.NodeDirect1, p.Offset[0])
	assert.EqualValues(t, 0, p.Offset[1])
}

func TestGetNodePathDirect2(t *testing.T) {
	p, ok := GetNodePath(directIndex + directBlks)
	assert.True(t, ok)
	assert.Equal(t, 1, p.Level)
	assert.EqualValues(t, ondisk.NodeDirect2, p.Offset[0])
	assert.EqualValues(t, 0, p.Offset[1])
}

func TestGetNodePathIndirect1(t *testing.T) {
	base := directIndex + 2*directBlks
	p, ok := GetNodePath(uint64(base) + directBlks + 5)
	assert.True(t, ok)
	assert.Equal(t, 2, p.Level)
	assert.EqualValues(t, ondisk.NodeIndirect1, p.Offset[0])
	assert.EqualValues(t, 1, p.Offset[1])
	assert.EqualValues(t, 5, p.Offset[2])
}

func TestGetNodePathDoubleIndirect(t *testing.T) {
	base := uint64(directIndex) + 2*directBlks + 2*indirectBlks
	// second indirect block (idx1=1) of the double-indirect, second
	// direct block within it (idx2=1), block offset 3.
	blk := base + uint64(indirectBlks) + uint64(directBlks) + 3
	p, ok := GetNodePath(blk)
	assert.True(t, ok)
	assert.Equal(t, 3, p.Level)
	assert.EqualValues(t, ondisk.NodeDIndirect, p.Offset[0])
	assert.EqualValues(t, 1, p.Offset[1])
	assert.EqualValues(t, 1, p.Offset[2])
	assert.EqualValues(t, 3, p.Offset[3])
}

func TestGetNodePathOutOfRange(t *testing.T) {
	_, ok := GetNodePath(MaxBlkno)
	assert.False(t, ok)
}
