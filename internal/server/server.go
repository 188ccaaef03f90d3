// Package server implements the filesystem layer's single background
// worker: a task queue drained by one goroutine, so the metadata core can
// hand off fire-and-forget work (replace-protect notifications, future
// periodic write-back or GC) without spinning up a goroutine per caller.
// Grounded on original_source/inc/fs/server_thread.hh's server_thread.
package server

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of posted work. It carries no result channel; a
// caller that needs to observe completion should close over its own
// signal, the same way the original's std::packaged_task callers wrap a
// promise in the closure rather than server_thread itself returning one.
type Task func()

// Server is a single-worker task queue. The zero value is not usable;
// construct with New.
type Server struct {
	tasks  chan Task
	cancel context.CancelFunc
	g      *errgroup.Group
}

// New returns a Server with a bounded task queue. Posting past capacity
// blocks the caller, matching the original's unbounded deque only in
// spirit: an unbounded Go channel would let a stalled worker grow memory
// without limit, so this package trades that for back-pressure instead.
func New(capacity int) *Server {
	return &Server{tasks: make(chan Task, capacity)}
}

// Start launches the worker goroutine.
func (s *Server) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	s.g = g
	g.Go(func() error { return s.run(gctx) })
}

// Stop requests the worker to drain its queue and exit, then waits.
func (s *Server) Stop() error {
	if s.cancel == nil {
		return nil
	}
	close(s.tasks)
	err := s.g.Wait()
	s.cancel()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (s *Server) run(ctx context.Context) error {
	for {
		select {
		case t, ok := <-s.tasks:
			if !ok {
				return nil
			}
			t()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PostTask enqueues t for the worker to run. Panics if called after Stop
// has closed the queue, matching the original's undefined behavior for
// posting to a stopped server_thread rather than silently dropping work.
func (s *Server) PostTask(t Task) {
	defer func() {
		if r := recover(); r != nil {
			panic(fmt.Sprintf("server: PostTask after Stop: %v", r))
		}
	}()
	s.tasks <- t
}
