package fileobj

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/posixshim"
)

func newTestHandle(t *testing.T) Handle {
	t.Helper()
	_, h := newTestCacheAndHandle(t)
	return h
}

func TestRwCheckFlagsRejectsWriteOnReadOnlyFd(t *testing.T) {
	h := newTestHandle(t)
	of := NewOpenedFile(posixshim.ORdonly, h)

	_, err := of.Write(context.Background(), []byte("x"))
	require.Error(t, err)
	kind, ok := coreerr.As(err)
	require.True(t, ok)
	assert.Equal(t, coreerr.RwConflictsOpenFlag, kind)
}

func TestRwCheckFlagsRejectsReadOnWriteOnlyFd(t *testing.T) {
	h := newTestHandle(t)
	of := NewOpenedFile(posixshim.OWronly, h)

	_, err := of.Read(context.Background(), make([]byte, 4))
	require.Error(t, err)
	kind, ok := coreerr.As(err)
	require.True(t, ok)
	assert.Equal(t, coreerr.RwConflictsOpenFlag, kind)
}

func TestWriteAdvancesPositionAndAppendModePromotesToEnd(t *testing.T) {
	h := newTestHandle(t)
	of := NewOpenedFile(posixshim.ORdwr, h)
	ctx := context.Background()

	n, err := of.Write(ctx, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint64(3), of.pos)

	of2 := NewOpenedFile(posixshim.ORdwr|posixshim.OAppend, h)
	of2.pos = 0 // append mode should ignore this and promote to EOF
	n, err = of2.Write(ctx, []byte("def"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint64(6), of2.pos)
}

func TestSetRwPosHandlesAllWhences(t *testing.T) {
	h := newTestHandle(t)
	of := NewOpenedFile(posixshim.ORdwr, h)
	ctx := context.Background()
	_, err := of.Write(ctx, []byte("0123456789"))
	require.NoError(t, err)

	assert.Equal(t, uint64(5), of.SetRwPos(5, posixshim.SeekSet))
	assert.Equal(t, uint64(8), of.SetRwPos(3, posixshim.SeekCur))
	assert.Equal(t, uint64(10), of.SetRwPos(0, posixshim.SeekEnd))
}
