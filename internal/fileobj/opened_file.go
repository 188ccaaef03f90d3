package fileobj

import (
	"context"
	"sync"

	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/posixshim"
)

// OpenedFile is one open file descriptor's worth of state: a position
// into a shared *File plus the flags it was opened with. Grounded on
// original_source/src/fs/opened_file.cc.
type OpenedFile struct {
	flags uint32
	pos   uint64

	posMu sync.Mutex
	file  Handle
}

// NewOpenedFile wraps h as a freshly opened descriptor, bumping the
// underlying file's fd reference count.
func NewOpenedFile(flags uint32, h Handle) *OpenedFile {
	h.File().AddFdRefcount()
	return &OpenedFile{flags: flags, file: h}
}

// Close releases the descriptor's reference, dropping the file's fd
// count. Does not touch nlink or dentry state; the caller decides
// whether the file should be deleted once both reach zero.
func (o *OpenedFile) Close() {
	o.file.File().SubFdRefcount()
}

// File returns the handle this descriptor reads and writes through.
func (o *OpenedFile) File() Handle { return o.file }

func (o *OpenedFile) rwCheckFlags(write bool) error {
	accMode := o.flags & posixshim.OAccmode
	if write {
		if accMode == posixshim.ORdonly {
			return coreerr.New(coreerr.RwConflictsOpenFlag, "fileobj: can not write on read-only fd")
		}
	} else {
		if accMode == posixshim.OWronly {
			return coreerr.New(coreerr.RwConflictsOpenFlag, "fileobj: can not read on write-only fd")
		}
	}
	return nil
}

// Read reads into buffer starting at the descriptor's current position
// and advances it by the number of bytes actually read.
func (o *OpenedFile) Read(ctx context.Context, buffer []byte) (int, error) {
	o.posMu.Lock()
	defer o.posMu.Unlock()

	if err := o.rwCheckFlags(false); err != nil {
		return 0, err
	}

	f := o.file.File()
	f.Lock().RLock()
	n, err := f.Read(ctx, buffer, o.pos)
	f.Lock().RUnlock()
	if err != nil {
		return n, err
	}

	o.file.MarkDirty()
	o.pos += uint64(n)
	return n, nil
}

// Write writes buffer starting at the descriptor's current position (or
// at the file's current end if opened with O_APPEND) and advances the
// position by the number of bytes actually written.
func (o *OpenedFile) Write(ctx context.Context, buffer []byte) (int, error) {
	o.posMu.Lock()
	defer o.posMu.Unlock()

	if err := o.rwCheckFlags(true); err != nil {
		return 0, err
	}

	f := o.file.File()
	var n int
	var err error
	if o.flags&posixshim.OAppend != 0 {
		f.Lock().Lock()
		o.pos = f.curSize()
		n, err = f.Write(ctx, buffer, o.pos)
		f.Lock().Unlock()
	} else {
		f.Lock().RLock()
		n, err = f.Write(ctx, buffer, o.pos)
		f.Lock().RUnlock()
	}
	if err != nil {
		return n, err
	}

	o.file.MarkDirty()
	o.pos += uint64(n)
	return n, nil
}

const (
	seekSet = posixshim.SeekSet
	seekCur = posixshim.SeekCur
	seekEnd = posixshim.SeekEnd
)

// SetRwPos repositions the descriptor per the SEEK_SET/SEEK_CUR/SEEK_END
// semantics of lseek, returning the new absolute position.
func (o *OpenedFile) SetRwPos(offset int64, whence int) uint64 {
	o.posMu.Lock()
	defer o.posMu.Unlock()

	switch whence {
	case seekSet:
		o.pos = uint64(offset)
	case seekCur:
		o.pos = uint64(int64(o.pos) + offset)
	case seekEnd:
		o.pos = uint64(int64(o.file.File().curSize()) + offset)
	}
	return o.pos
}
