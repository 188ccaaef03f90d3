package fsmanager

import (
	"sync"

	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/fileobj"
)

// reservedFds mirrors fd_array's reservation of 0/1/2 for stdio: the
// allocation cursor never hands those out even though this core has no
// actual stdio concept, so fd numbers a caller sees stay consistent with
// POSIX expectations.
const reservedFds = 3

// fdTable is fd_array: a small-integer descriptor table mapping an fd to
// its *fileobj.OpenedFile, allocating the lowest free number at or above
// reservedFds and recycling freed ones before growing the table.
type fdTable struct {
	mu       sync.Mutex
	capacity int
	files    []*fileobj.OpenedFile
	allocPos int
	freeSet  map[int]struct{}
}

func newFdTable(capacity int) *fdTable {
	return &fdTable{
		capacity: capacity,
		files:    make([]*fileobj.OpenedFile, reservedFds, capacity),
		allocPos: reservedFds,
		freeSet:  make(map[int]struct{}),
	}
}

// alloc assigns of the lowest available fd, preferring a freed slot over
// growing the table, matching alloc_fd's free_set-first policy.
func (t *fdTable) alloc(of *fileobj.OpenedFile) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.freeSet) > 0 {
		fd := -1
		for f := range t.freeSet {
			if fd < 0 || f < fd {
				fd = f
			}
		}
		delete(t.freeSet, fd)
		t.files[fd] = of
		return fd, nil
	}

	if t.allocPos >= t.capacity {
		return 0, coreerr.New(coreerr.AllocError, "fsmanager: fd table exhausted")
	}
	fd := t.allocPos
	t.allocPos++
	t.files = append(t.files, of)
	return fd, nil
}

// get returns the opened file registered at fd, or InvalidFd if fd is
// out of range or not currently allocated.
func (t *fdTable) get(fd int) (*fileobj.OpenedFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < reservedFds || fd >= len(t.files) || t.files[fd] == nil {
		return nil, coreerr.New(coreerr.InvalidFd, "fsmanager: fd is not open")
	}
	return t.files[fd], nil
}

// free removes fd's entry and returns it, recycling the number for a
// future alloc.
func (t *fdTable) free(fd int) (*fileobj.OpenedFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < reservedFds || fd >= len(t.files) || t.files[fd] == nil {
		return nil, coreerr.New(coreerr.InvalidFd, "fsmanager: fd is not open")
	}
	of := t.files[fd]
	t.files[fd] = nil
	t.freeSet[fd] = struct{}{}
	return of, nil
}
