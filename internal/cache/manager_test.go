package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerEvictsLeastRecentlyUsed(t *testing.T) {
	m := NewManager[int, string]()
	m.Add(1, "a")
	m.Add(2, "b")
	m.Add(3, "c")

	// touch 1, so 2 becomes the least recently used.
	_, ok := m.Get(1, true)
	require.True(t, ok)

	key, val, ok := m.ReplaceOne()
	require.True(t, ok)
	assert.Equal(t, 2, key)
	assert.Equal(t, "b", val)
}

func TestManagerPinnedEntryNotEvicted(t *testing.T) {
	m := NewManager[int, string]()
	m.Add(1, "a")
	m.Add(2, "b")
	m.Pin(1)

	assert.Equal(t, 1, m.NumCanReplace())
	key, _, ok := m.ReplaceOne()
	require.True(t, ok)
	assert.Equal(t, 2, key)

	assert.Equal(t, 0, m.NumCanReplace())
}

func TestManagerUnpinReentersLRUAtTail(t *testing.T) {
	m := NewManager[int, string]()
	m.Add(1, "a")
	m.Add(2, "b")
	m.Pin(1)
	m.Unpin(1)

	// 2 is now the lru head since 1 was re-inserted at the tail.
	key, _, ok := m.ReplaceOne()
	require.True(t, ok)
	assert.Equal(t, 2, key)
}

func TestManagerRemoveDropsPinnedEntry(t *testing.T) {
	m := NewManager[int, string]()
	m.Add(1, "a")
	m.Add(2, "b")
	m.Pin(1)

	v, ok := m.Remove(1)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, m.Len())
	assert.False(t, m.IsPinned(1))
}

func TestManagerReplaceOneEmpty(t *testing.T) {
	m := NewManager[int, string]()
	_, _, ok := m.ReplaceOne()
	assert.False(t, ok)
}

func TestSafeManagerConcurrentAddGet(t *testing.T) {
	s := NewSafeManager[int, int]()
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func(i int) {
			s.Add(i, i*i)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	assert.Equal(t, 50, s.Len())
	v, ok := s.Get(7, true)
	require.True(t, ok)
	assert.Equal(t, 49, v)
}
