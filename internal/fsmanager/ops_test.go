package fsmanager

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/posixshim"
)

func TestMkdirRejectsDuplicateName(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	require.NoError(t, root.Mkdir(ctx, "/sub"))
	err := root.Mkdir(ctx, "/sub")
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.Exists))
}

func TestMkdirRejectsMissingParent(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	err := root.Mkdir(ctx, "/nope/sub")
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.NotFound))
}

func TestMkdirSubdirAcceptsItsOwnChild(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	require.NoError(t, root.Mkdir(ctx, "/sub"))
	require.NoError(t, root.Mkdir(ctx, "/sub/nested"))

	parent, target, err := root.walkPath(ctx, "/sub/nested")
	require.NoError(t, err)
	require.NotNil(t, target)
	root.Dentries.Put(parent)
	root.Dentries.Put(target)
}

func TestRmdirRemovesEmptyDirectory(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	require.NoError(t, root.Mkdir(ctx, "/sub"))
	require.NoError(t, root.Rmdir(ctx, "/sub"))

	_, target, err := root.walkPath(ctx, "/sub")
	require.NoError(t, err)
	assert.Nil(t, target)
}

func TestRmdirRejectsNonEmptyDirectory(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	require.NoError(t, root.Mkdir(ctx, "/sub"))
	require.NoError(t, root.Mkdir(ctx, "/sub/nested"))

	err := root.Rmdir(ctx, "/sub")
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.NotEmpty))
}

func TestRmdirRejectsRoot(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	err := root.Rmdir(ctx, "/")
	require.Error(t, err)
}

func TestOpenCreateWriteCloseReadBack(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	fd, err := root.Open(ctx, "/file.txt", posixshim.OWronly|posixshim.OCreat)
	require.NoError(t, err)

	payload := []byte("hello hscfs")
	n, err := root.Write(ctx, fd, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	require.NoError(t, root.Close(ctx, fd))

	fd2, err := root.Open(ctx, "/file.txt", posixshim.ORdonly)
	require.NoError(t, err)

	buf := make([]byte, len(payload))
	n, err = root.Read(ctx, fd2, buf)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.True(t, bytes.Equal(payload, buf))

	require.NoError(t, root.Close(ctx, fd2))
}

func TestOpenWithoutCreateOnMissingFileFails(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	_, err := root.Open(ctx, "/nope.txt", posixshim.ORdonly)
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.NotFound))
}

func TestOpenTruncTruncatesExistingContent(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	fd, err := root.Open(ctx, "/file.txt", posixshim.OWronly|posixshim.OCreat)
	require.NoError(t, err)
	_, err = root.Write(ctx, fd, []byte("some initial content"))
	require.NoError(t, err)
	require.NoError(t, root.Close(ctx, fd))

	fd2, err := root.Open(ctx, "/file.txt", posixshim.OWronly|posixshim.OTrunc)
	require.NoError(t, err)
	require.NoError(t, root.Close(ctx, fd2))

	fd3, err := root.Open(ctx, "/file.txt", posixshim.ORdonly)
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := root.Read(ctx, fd3, buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	require.NoError(t, root.Close(ctx, fd3))
}

func TestUnlinkRemovesDentryAndFreesInodeOnLastClose(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	fd, err := root.Open(ctx, "/file.txt", posixshim.OWronly|posixshim.OCreat)
	require.NoError(t, err)
	_, err = root.Write(ctx, fd, []byte("data"))
	require.NoError(t, err)

	require.NoError(t, root.Unlink(ctx, "/file.txt"))

	_, target, err := root.walkPath(ctx, "/file.txt")
	require.NoError(t, err)
	assert.Nil(t, target)

	require.NoError(t, root.Close(ctx, fd))
}

func TestUnlinkOnDirectoryFails(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	require.NoError(t, root.Mkdir(ctx, "/sub"))
	err := root.Unlink(ctx, "/sub")
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.IsDirectory))
}

func TestLinkAddsSecondName(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	fd, err := root.Open(ctx, "/a.txt", posixshim.OWronly|posixshim.OCreat)
	require.NoError(t, err)
	_, err = root.Write(ctx, fd, []byte("shared"))
	require.NoError(t, err)
	require.NoError(t, root.Close(ctx, fd))

	require.NoError(t, root.Link(ctx, "/a.txt", "/b.txt"))

	fd2, err := root.Open(ctx, "/b.txt", posixshim.ORdonly)
	require.NoError(t, err)
	buf := make([]byte, 6)
	n, err := root.Read(ctx, fd2, buf)
	require.NoError(t, err)
	assert.Equal(t, "shared", string(buf[:n]))
	require.NoError(t, root.Close(ctx, fd2))

	require.NoError(t, root.Unlink(ctx, "/a.txt"))

	fd3, err := root.Open(ctx, "/b.txt", posixshim.ORdonly)
	require.NoError(t, err)
	require.NoError(t, root.Close(ctx, fd3))
}

func TestLinkRejectsExistingTarget(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	fd, err := root.Open(ctx, "/a.txt", posixshim.OWronly|posixshim.OCreat)
	require.NoError(t, err)
	require.NoError(t, root.Close(ctx, fd))

	fd2, err := root.Open(ctx, "/b.txt", posixshim.OWronly|posixshim.OCreat)
	require.NoError(t, err)
	require.NoError(t, root.Close(ctx, fd2))

	err = root.Link(ctx, "/a.txt", "/b.txt")
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.Exists))
}

func TestLseekRepositionsReadOffset(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	fd, err := root.Open(ctx, "/file.txt", posixshim.OWronly|posixshim.OCreat)
	require.NoError(t, err)
	_, err = root.Write(ctx, fd, []byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, root.Close(ctx, fd))

	fd2, err := root.Open(ctx, "/file.txt", posixshim.ORdonly)
	require.NoError(t, err)

	off, err := root.Lseek(ctx, fd2, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), off)

	buf := make([]byte, 5)
	n, err := root.Read(ctx, fd2, buf)
	require.NoError(t, err)
	assert.Equal(t, "56789", string(buf[:n]))

	require.NoError(t, root.Close(ctx, fd2))
}

func TestFsyncSucceedsAfterWrite(t *testing.T) {
	root, _ := newTestRoot(t)
	ctx := context.Background()

	fd, err := root.Open(ctx, "/file.txt", posixshim.OWronly|posixshim.OCreat)
	require.NoError(t, err)
	_, err = root.Write(ctx, fd, []byte("flush me"))
	require.NoError(t, err)

	require.NoError(t, root.Fsync(ctx, fd))
	require.NoError(t, root.Close(ctx, fd))
}
