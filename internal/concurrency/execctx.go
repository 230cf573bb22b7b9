// File: internal/concurrency/execctx.go
// Package concurrency
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ExecContext: one cooperative dispatch lane with a FIFO task queue and
// an adaptive-backoff run loop.

package concurrency

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/hioload-rpc/api"
)

// Task is one unit of deferred work. It receives the ID of the context
// executing it so callers can assert context-affinity invariants.
type Task func(running api.CtxID)

// ExecContext is a single-consumer dispatch lane. Any context may Post;
// only one goroutine at a time may drive RunPendingWork.
type ExecContext struct {
	id  api.CtxID
	mu  sync.Mutex
	q   *queue.Queue
	log *zap.Logger
}

// NewExecContext constructs a context with the given ID.
func NewExecContext(id api.CtxID, log *zap.Logger) *ExecContext {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExecContext{id: id, q: queue.New(), log: log}
}

// ID returns the context identifier.
func (c *ExecContext) ID() api.CtxID { return c.id }

// Post enqueues a task for a later run-pending-work pass. Never blocks.
func (c *ExecContext) Post(t Task) {
	c.mu.Lock()
	c.q.Add(t)
	c.mu.Unlock()
}

// Pending returns the approximate queued task count.
func (c *ExecContext) Pending() int {
	c.mu.Lock()
	n := c.q.Length()
	c.mu.Unlock()
	return n
}

// RunPendingWork drains tasks for up to maxWait, backing off while idle.
// With maxWait zero it performs exactly one non-blocking drain pass.
// Returns the number of tasks executed.
func (c *ExecContext) RunPendingWork(maxWait time.Duration) int {
	deadline := time.Now().Add(maxWait)
	executed := 0
	backoff := time.Microsecond

	for {
		t, ok := c.take()
		if ok {
			t(c.id)
			executed++
			backoff = time.Microsecond
			continue
		}
		if maxWait == 0 || !time.Now().Before(deadline) {
			return executed
		}
		time.Sleep(backoff)
		if backoff < 100*time.Microsecond {
			backoff *= 2
		}
	}
}

// Serve drives the context until stop closes. Used for auxiliary contexts
// owned by the engine; the foreground context is driven by the host.
func (c *ExecContext) Serve(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			// Final drain so no posted completion is stranded.
			c.RunPendingWork(0)
			return
		default:
			c.RunPendingWork(time.Millisecond)
		}
	}
}

func (c *ExecContext) take() (Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.q.Length() == 0 {
		return nil, false
	}
	return c.q.Remove().(Task), true
}
