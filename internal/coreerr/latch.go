package coreerr

import "sync/atomic"

// Latch implements the core's unrecoverable-state flag (spec.md §7).
// Any error encountered while fs_meta_lock is held must call Trip before
// unwinding; every exported operation must call Check at entry and
// short-circuit to a NotRecoverable error if it returns true.
type Latch struct {
	tripped atomic.Bool
}

// Trip permanently marks the core unrecoverable. Idempotent.
func (l *Latch) Trip() {
	l.tripped.Store(true)
}

// Tripped reports whether the core has already been marked unrecoverable.
func (l *Latch) Tripped() bool {
	return l.tripped.Load()
}

// Check returns a NotRecoverable error if the latch has tripped, else nil.
// Call at the top of every exported fsmanager operation.
func (l *Latch) Check() error {
	if l.tripped.Load() {
		return New(NotRecoverable, "core is in an unrecoverable state")
	}
	return nil
}
