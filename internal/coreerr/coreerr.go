// Package coreerr defines the error taxonomy shared by every core
// subsystem. Recoverable errors unwind to the API boundary unchanged; any
// error encountered while fs_meta_lock is held trips the process into the
// Unrecoverable state (see Latch), matching the propagation policy in the
// specification's error-handling design: the core keeps no metadata undo
// log, so a mid-transaction abort cannot be safely reversed.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind classifies a CoreError for errno mapping at the API boundary.
type Kind int

const (
	// UserPathInvalid maps to EINVAL.
	UserPathInvalid Kind = iota
	// InvalidFd maps to EBADF.
	InvalidFd
	// RwConflictsOpenFlag maps to EINVAL.
	RwConflictsOpenFlag
	// NoFreeNid maps to ENOSPC.
	NoFreeNid
	// NoFreeSegment maps to ENOSPC.
	NoFreeSegment
	// IoError maps to EIO.
	IoError
	// AllocError maps to ENOMEM.
	AllocError
	// TimerError maps to ENOTRECOVERABLE.
	TimerError
	// NotRecoverable maps to ENOTRECOVERABLE.
	NotRecoverable
	// NotFound maps to ENOENT; not named in spec.md's taxonomy table but
	// required by S3's unlink/open-after-unlink scenario.
	NotFound
	// IsDirectory maps to EISDIR; required by S3's unlink("/") scenario.
	IsDirectory
	// NotEmpty maps to ENOTEMPTY; required by S4's rmdir scenario.
	NotEmpty
	// Exists maps to EEXIST.
	Exists
)

func (k Kind) String() string {
	switch k {
	case UserPathInvalid:
		return "UserPathInvalid"
	case InvalidFd:
		return "InvalidFd"
	case RwConflictsOpenFlag:
		return "RwConflictsOpenFlag"
	case NoFreeNid:
		return "NoFreeNid"
	case NoFreeSegment:
		return "NoFreeSegment"
	case IoError:
		return "IoError"
	case AllocError:
		return "AllocError"
	case TimerError:
		return "TimerError"
	case NotRecoverable:
		return "NotRecoverable"
	case NotFound:
		return "NotFound"
	case IsDirectory:
		return "IsDirectory"
	case NotEmpty:
		return "NotEmpty"
	case Exists:
		return "Exists"
	default:
		return "Unknown"
	}
}

// CoreError is the error type returned by every exported core operation.
type CoreError struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// New builds a CoreError with no wrapped cause.
func New(k Kind, msg string) error {
	return &CoreError{Kind: k, Msg: msg}
}

// Wrap builds a CoreError wrapping cause.
func Wrap(k Kind, msg string, cause error) error {
	return &CoreError{Kind: k, Msg: msg, Cause: cause}
}

// As extracts the Kind of err, if err is (or wraps) a *CoreError.
func As(err error) (Kind, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

// Is reports whether err is a CoreError of the given Kind.
func Is(err error, k Kind) bool {
	kind, ok := As(err)
	return ok && kind == k
}
