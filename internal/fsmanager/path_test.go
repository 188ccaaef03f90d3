package fsmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

func TestSplitPathRejectsRelativePaths(t *testing.T) {
	_, err := splitPath("a/b")
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.UserPathInvalid))
}

func TestSplitPathCollapsesRepeatedSlashes(t *testing.T) {
	comps, err := splitPath("//a//b/c/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, comps)
}

func TestSplitDirAndFile(t *testing.T) {
	dir, name, err := splitDirAndFile("/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "/a/b/", dir)
	assert.Equal(t, "c", name)

	dir, name, err = splitDirAndFile("/a/b/")
	require.NoError(t, err)
	assert.Equal(t, "/a/b/", dir)
	assert.Equal(t, "", name)

	dir, name, err = splitDirAndFile("/")
	require.NoError(t, err)
	assert.Equal(t, "/", dir)
	assert.Equal(t, "", name)
}

func TestJoinAbs(t *testing.T) {
	assert.Equal(t, "/", joinAbs(nil))
	assert.Equal(t, "/a/b/", joinAbs([]string{"a", "b"}))
}

func TestResolveDirRoot(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	d, err := root.resolveDir(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, ondisk.Ino(root.Super.RootIno), d.Ino)
	root.Dentries.Put(d)
}

func TestResolveDirMissingComponentIsNotFound(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	_, err := root.resolveDir(ctx, "/nope/")
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.NotFound))
}

func TestWalkPathRootHasNoParent(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	parent, target, err := root.walkPath(ctx, "/")
	require.NoError(t, err)
	assert.Nil(t, parent)
	require.NotNil(t, target)
	assert.Equal(t, ondisk.Ino(root.Super.RootIno), target.Ino)
	root.Dentries.Put(target)
}

func TestWalkPathMissingTargetReturnsNilWithoutError(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	parent, target, err := root.walkPath(ctx, "/missing")
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Nil(t, target)
	root.Dentries.Put(parent)
}

func TestWalkPathMissingIntermediateDirIsNotFound(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	_, _, err := root.walkPath(ctx, "/nope/child")
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.NotFound))
}

func TestMkdirThenWalkPathFindsNewDirectory(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	require.NoError(t, root.Mkdir(ctx, "/sub"))

	parent, target, err := root.walkPath(ctx, "/sub")
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, ondisk.FTDir, target.FileType)
	root.Dentries.Put(parent)
	root.Dentries.Put(target)

	d, err := root.resolveDir(ctx, "/sub/")
	require.NoError(t, err)
	root.Dentries.Put(d)
}
