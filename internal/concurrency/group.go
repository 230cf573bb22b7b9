// File: internal/concurrency/group.go
// Package concurrency
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/momentics/hioload-rpc/api"
)

// Group holds the foreground context plus a fixed set of auxiliary
// contexts. The set is immutable after construction.
type Group struct {
	ctxs []*ExecContext
	next atomic.Uint32 // round-robin cursor over auxiliary contexts
}

// NewGroup builds context 0 (foreground) and numAux auxiliary contexts.
func NewGroup(numAux int, log *zap.Logger) *Group {
	if numAux < 0 {
		numAux = 0
	}
	g := &Group{ctxs: make([]*ExecContext, numAux+1)}
	for i := range g.ctxs {
		g.ctxs[i] = NewExecContext(api.CtxID(i), log)
	}
	return g
}

// Foreground returns context 0.
func (g *Group) Foreground() *ExecContext { return g.ctxs[0] }

// Get returns the context with the given ID; unknown IDs fail fast.
func (g *Group) Get(id api.CtxID) *ExecContext {
	if id < 0 || int(id) >= len(g.ctxs) {
		panic("concurrency: unknown execution context")
	}
	return g.ctxs[id]
}

// NextAux picks an auxiliary context round-robin. Falls back to the
// foreground context when the group has no auxiliaries.
func (g *Group) NextAux() *ExecContext {
	n := len(g.ctxs) - 1
	if n == 0 {
		return g.ctxs[0]
	}
	i := g.next.Add(1)
	return g.ctxs[1+int(i)%n]
}

// Aux returns the auxiliary contexts.
func (g *Group) Aux() []*ExecContext { return g.ctxs[1:] }

// Size returns the total context count including foreground.
func (g *Group) Size() int { return len(g.ctxs) }
