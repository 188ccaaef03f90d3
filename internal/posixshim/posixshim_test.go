package posixshim

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

func TestInoFuseRoundTrips(t *testing.T) {
	ino := ondisk.Ino(42)
	assert.Equal(t, ino, FuseToIno(InoToFuse(ino)))
}

func TestErrnoMapsKnownKinds(t *testing.T) {
	cases := map[error]syscall.Errno{
		coreerr.New(coreerr.NotFound, "x"):            syscall.ENOENT,
		coreerr.New(coreerr.NoFreeSegment, "x"):       syscall.ENOSPC,
		coreerr.New(coreerr.Exists, "x"):              syscall.EEXIST,
		coreerr.New(coreerr.IsDirectory, "x"):         syscall.EISDIR,
		coreerr.New(coreerr.NotEmpty, "x"):            syscall.ENOTEMPTY,
		coreerr.New(coreerr.InvalidFd, "x"):           syscall.EBADF,
		coreerr.New(coreerr.RwConflictsOpenFlag, "x"): syscall.EINVAL,
	}
	for err, want := range cases {
		assert.Equal(t, want, Errno(err))
	}
}

func TestErrnoFallsBackToEIOForUnknownErrors(t *testing.T) {
	assert.Equal(t, syscall.EIO, Errno(assertErr("boom")))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
