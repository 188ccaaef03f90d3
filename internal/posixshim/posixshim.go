// Package posixshim maps the filesystem core's error taxonomy onto POSIX
// errno values and carries the open/seek flag constants every caller
// above fileobj needs, the same seam hanwen-go-fuse keeps between its
// fuse.Status values and syscall.Errno rather than inventing its own
// error numbering.
package posixshim

import (
	"syscall"

	"github.com/jacobsa/fuse/fuseops"
	"golang.org/x/sys/unix"

	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// Ino and Handle alias fuseops' own identifier types, the width and
// zero-value convention a kernel FUSE transport expects for inode and
// file-handle numbers. A caller bridging this core to a real mount point
// converts through these rather than inventing its own ino/fh numbering.
type Ino = fuseops.InodeID
type Handle = fuseops.HandleID

// RootIno is the inode number a FUSE mount reserves for the filesystem
// root, distinct from this core's own on-disk root inode number
// (ondisk.SuperBlock.RootIno).
const RootIno = fuseops.RootInodeID

// InoToFuse widens this core's own inode number to the id width a FUSE
// transport uses on the wire.
func InoToFuse(ino ondisk.Ino) Ino { return Ino(ino) }

// FuseToIno narrows a FUSE-facing inode id back to this core's own
// inode number type.
func FuseToIno(id Ino) ondisk.Ino { return ondisk.Ino(id) }

// Open flags, matching the original's open_flags.hh constants one for
// one (the O_* bits a caller passes into opened_file).
const (
	ORdonly = unix.O_RDONLY
	OWronly = unix.O_WRONLY
	ORdwr   = unix.O_RDWR
	OAccmode = unix.O_ACCMODE

	OCreat  = unix.O_CREAT
	OExcl   = unix.O_EXCL
	OTrunc  = unix.O_TRUNC
	OAppend = unix.O_APPEND
)

// Seek whence values.
const (
	SeekSet = unix.SEEK_SET
	SeekCur = unix.SEEK_CUR
	SeekEnd = unix.SEEK_END
)

// Errno maps a coreerr.Kind to the errno a syscall-facing caller should
// report. NotRecoverable and TimerError map to ENOTRECOVERABLE; IoError,
// unknown kinds and errors carrying no coreerr.Kind fall back to EIO.
func Errno(err error) syscall.Errno {
	kind, ok := coreerr.As(err)
	if !ok {
		return syscall.EIO
	}
	switch kind {
	case coreerr.UserPathInvalid:
		return syscall.EINVAL
	case coreerr.InvalidFd:
		return syscall.EBADF
	case coreerr.RwConflictsOpenFlag:
		return syscall.EINVAL
	case coreerr.NoFreeNid, coreerr.NoFreeSegment:
		return syscall.ENOSPC
	case coreerr.AllocError:
		return syscall.ENOMEM
	case coreerr.NotFound:
		return syscall.ENOENT
	case coreerr.IsDirectory:
		return syscall.EISDIR
	case coreerr.NotEmpty:
		return syscall.ENOTEMPTY
	case coreerr.Exists:
		return syscall.EEXIST
	case coreerr.TimerError, coreerr.NotRecoverable:
		return syscall.ENOTRECOVERABLE
	case coreerr.IoError:
		return syscall.EIO
	default:
		return syscall.EIO
	}
}
