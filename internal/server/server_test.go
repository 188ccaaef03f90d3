package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostTaskRunsOnWorker(t *testing.T) {
	s := New(4)
	s.Start(context.Background())

	var ran atomic.Bool
	done := make(chan struct{})
	s.PostTask(func() {
		ran.Store(true)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	assert.True(t, ran.Load())
	require.NoError(t, s.Stop())
}

func TestStopDrainsQueuedTasksBeforeExiting(t *testing.T) {
	s := New(4)
	s.Start(context.Background())

	var count atomic.Int32
	for i := 0; i < 3; i++ {
		s.PostTask(func() { count.Add(1) })
	}

	require.NoError(t, s.Stop())
	assert.Equal(t, int32(3), count.Load())
}

func TestPostTaskAfterStopPanics(t *testing.T) {
	s := New(1)
	s.Start(context.Background())
	require.NoError(t, s.Stop())

	assert.Panics(t, func() { s.PostTask(func() {}) })
}
