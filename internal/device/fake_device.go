package device

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// FakeDevice is an in-memory Device backing store for tests. It does not
// attempt to model the SSD's firmware path-lookup or file-mapping search
// algorithms; callers that exercise those offload paths install a
// PathLookupFunc / FileMappingFunc, and without one PathLookup and
// FileMappingSearch return an error.
type FakeDevice struct {
	mu     sync.Mutex
	blocks map[uint32][]byte

	metaJournalHead uint64

	PathLookupFunc    func(startIno uint32, path []string, depth int) (PathLookupResult, error)
	FileMappingFunc   func(ino uint32, startNid uint32, blkno uint64, returnAllLevels bool) (FileMappingResult, error)

	FailReads  bool
	FailWrites bool
}

// NewFakeDevice returns an empty FakeDevice; every block reads as zeros
// until written.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{blocks: make(map[uint32][]byte)}
}

func (d *FakeDevice) ReadBlock(ctx context.Context, lpa uint32, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailReads {
		return fmt.Errorf("fake device: injected read failure at lpa %d", lpa)
	}
	if b, ok := d.blocks[lpa]; ok {
		copy(buf, b)
	} else {
		for i := range buf {
			buf[i] = 0
		}
	}
	return nil
}

func (d *FakeDevice) WriteBlock(ctx context.Context, lpa uint32, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailWrites {
		return fmt.Errorf("fake device: injected write failure at lpa %d", lpa)
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	d.blocks[lpa] = cp
	return nil
}

func (d *FakeDevice) ReadBlockAsync(ctx context.Context, lpa uint32, buf []byte) <-chan error {
	ch := make(chan error, 1)
	ch <- d.ReadBlock(ctx, lpa, buf)
	return ch
}

func (d *FakeDevice) WriteBlockAsync(ctx context.Context, lpa uint32, buf []byte) <-chan error {
	ch := make(chan error, 1)
	ch <- d.WriteBlock(ctx, lpa, buf)
	return ch
}

func (d *FakeDevice) PathLookup(ctx context.Context, startIno uint32, path []string, depth int) (PathLookupResult, error) {
	if d.PathLookupFunc != nil {
		return d.PathLookupFunc(startIno, path, depth)
	}
	return PathLookupResult{}, fmt.Errorf("fake device: no PathLookupFunc installed")
}

func (d *FakeDevice) FileMappingSearch(ctx context.Context, ino uint32, startNid uint32, blkno uint64, returnAllLevels bool) (FileMappingResult, error) {
	if d.FileMappingFunc != nil {
		return d.FileMappingFunc(ino, startNid, blkno, returnAllLevels)
	}
	return FileMappingResult{}, fmt.Errorf("fake device: no FileMappingFunc installed")
}

func (d *FakeDevice) UpdateMetaJournalTail(ctx context.Context, originLPA uint32, nblocks uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metaJournalHead += uint64(nblocks)
	return nil
}

func (d *FakeDevice) MetaJournalHead(ctx context.Context) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.metaJournalHead, nil
}

func (d *FakeDevice) FsModuleInit(ctx context.Context) error      { return nil }
func (d *FakeDevice) FsDBInit(ctx context.Context) error          { return nil }
func (d *FakeDevice) FsRecoverFromDB(ctx context.Context) error   { return nil }
func (d *FakeDevice) ClearMetaJournal(ctx context.Context) error  { return nil }
func (d *FakeDevice) StartApplyJournal(ctx context.Context) error { return nil }
func (d *FakeDevice) StopApplyJournal(ctx context.Context) error  { return nil }

// Snapshot returns the sorted set of LPAs currently holding non-empty
// blocks, for test assertions about which blocks a unit of work touched.
func (d *FakeDevice) Snapshot() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	lpas := make([]uint32, 0, len(d.blocks))
	for lpa := range d.blocks {
		lpas = append(lpas, lpa)
	}
	sort.Slice(lpas, func(i, j int) bool { return lpas[i] < lpas[j] })
	return lpas
}

func (d *FakeDevice) String() string {
	lpas := d.Snapshot()
	parts := make([]string, len(lpas))
	for i, lpa := range lpas {
		parts[i] = fmt.Sprintf("%d", lpa)
	}
	return "FakeDevice{blocks: [" + strings.Join(parts, ",") + "]}"
}
