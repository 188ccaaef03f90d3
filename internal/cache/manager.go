package cache

import "sync"

// Manager combines a key->entry index with an LRUReplacer into the
// generic cache discipline every metadata cache builds on: Add hands
// ownership of an entry to the cache, Get optionally counts as an
// access, Pin/Unpin move an entry between the lru and pinned lists, and
// ReplaceOne evicts and returns ownership of the least-recently-used
// unpinned entry.
//
// Manager itself is not safe for concurrent use; SafeManager wraps it
// with a mutex for callers that need that.
type Manager[K comparable, V any] struct {
	index    map[K]V
	replacer *LRUReplacer[K]
}

// NewManager returns an empty Manager.
func NewManager[K comparable, V any]() *Manager[K, V] {
	return &Manager[K, V]{
		index:    make(map[K]V),
		replacer: NewLRUReplacer[K](),
	}
}

// Add inserts entry under key. Panics if key is already present.
func (m *Manager[K, V]) Add(key K, entry V) {
	if _, ok := m.index[key]; ok {
		panic("cache: Manager.Add of already-present key")
	}
	m.index[key] = entry
	m.replacer.Add(key)
}

// Get returns the entry for key and whether it was found. If found and
// isAccess, the entry's replacement eligibility is refreshed.
func (m *Manager[K, V]) Get(key K, isAccess bool) (V, bool) {
	v, ok := m.index[key]
	if ok && isAccess {
		m.replacer.Access(key)
	}
	return v, ok
}

// Pin marks key's entry ineligible for eviction.
func (m *Manager[K, V]) Pin(key K) {
	m.replacer.Pin(key)
}

// Unpin marks key's entry eligible for eviction again.
func (m *Manager[K, V]) Unpin(key K) {
	m.replacer.Unpin(key)
}

// IsPinned reports whether key's entry is currently pinned.
func (m *Manager[K, V]) IsPinned(key K) bool {
	return m.replacer.IsPinned(key)
}

// Len returns the total number of cached entries, pinned or not.
func (m *Manager[K, V]) Len() int {
	return len(m.index)
}

// NumCanReplace returns the number of entries currently eligible for
// eviction.
func (m *Manager[K, V]) NumCanReplace() int {
	return m.replacer.NumCanReplace()
}

// ReplaceOne evicts the least-recently-used unpinned entry and returns
// it along with its key. ok is false if nothing is eligible.
func (m *Manager[K, V]) ReplaceOne() (key K, entry V, ok bool) {
	if m.replacer.NumCanReplace() == 0 {
		return key, entry, false
	}
	key = m.replacer.PopReplaced()
	entry = m.index[key]
	delete(m.index, key)
	return key, entry, true
}

// All returns every cached entry, pinned or not. Callers must not mutate
// the returned map; it is a live view for iteration only (e.g. flushing
// every dirty entry), not a copy.
func (m *Manager[K, V]) All() map[K]V {
	return m.index
}

// Remove drops key unconditionally, whether or not it was eligible for
// replacement. Used when an entry is explicitly destroyed (e.g. nid
// freed) rather than evicted by replacement pressure.
func (m *Manager[K, V]) Remove(key K) (V, bool) {
	v, ok := m.index[key]
	if !ok {
		return v, false
	}
	m.replacer.Delete(key)
	delete(m.index, key)
	return v, true
}

// SafeManager wraps Manager with a mutex, matching
// generic_cache_manager_safe, for callers that share one cache across
// goroutines without a lock of their own. The metadata caches in this
// module are built on the plain Manager.
type SafeManager[K comparable, V any] struct {
	mu sync.Mutex
	m  *Manager[K, V]
}

// NewSafeManager returns an empty SafeManager.
func NewSafeManager[K comparable, V any]() *SafeManager[K, V] {
	return &SafeManager[K, V]{m: NewManager[K, V]()}
}

func (s *SafeManager[K, V]) Add(key K, entry V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Add(key, entry)
}

func (s *SafeManager[K, V]) Get(key K, isAccess bool) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Get(key, isAccess)
}

func (s *SafeManager[K, V]) Pin(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Pin(key)
}

func (s *SafeManager[K, V]) Unpin(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Unpin(key)
}

func (s *SafeManager[K, V]) IsPinned(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.IsPinned(key)
}

func (s *SafeManager[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Len()
}

func (s *SafeManager[K, V]) NumCanReplace() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.NumCanReplace()
}

func (s *SafeManager[K, V]) ReplaceOne() (key K, entry V, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.ReplaceOne()
}

func (s *SafeManager[K, V]) Remove(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Remove(key)
}
