// File: core/correlation/registry.go
// Package correlation
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package correlation

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/momentics/hioload-rpc/api"
)

// Pending is the typed record of one outstanding call. It implements
// api.Call for the continuation that resolves it. The record owns its
// request and response buffers until the continuation runs; the
// continuation then owns both and must release them exactly once.
type Pending struct {
	tag     api.Tag
	sess    api.SessionID
	origin  api.CtxID
	req     api.Buffer
	resp    api.Buffer
	cont    api.Continuation
	status  api.CallStatus
	invoked bool
	slot    int32
}

var _ api.Call = (*Pending)(nil)

func (p *Pending) Tag() api.Tag           { return p.tag }
func (p *Pending) Session() api.SessionID { return p.sess }
func (p *Pending) Origin() api.CtxID      { return p.origin }
func (p *Pending) Req() api.Buffer        { return p.req }
func (p *Pending) Resp() api.Buffer       { return p.resp }
func (p *Pending) Status() api.CallStatus { return p.status }

// Invoke runs the continuation. A second invocation is a contract breach
// and fails fast.
func (p *Pending) Invoke(running api.CtxID) {
	if p.invoked {
		panic(fmt.Sprintf("correlation: continuation for tag %d invoked twice", p.tag))
	}
	p.invoked = true
	p.cont(running, p)
}

// Registry maps tags to pending-call records. Safe for use from multiple
// execution contexts.
type Registry struct {
	mu    sync.Mutex
	arena []*Pending
	free  []int32
	index map[api.Tag]int32
	log   *zap.Logger
}

// New constructs an empty registry.
func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{index: make(map[api.Tag]int32), log: log}
}

// Register associates a continuation with a tag at call-issue time. The
// tag must be unique among outstanding calls; a duplicate is a fail-fast
// contract breach. Ownership of req and resp transfers to the record.
func (r *Registry) Register(tag api.Tag, sess api.SessionID, origin api.CtxID,
	req, resp api.Buffer, cont api.Continuation) *Pending {
	if cont == nil {
		panic("correlation: nil continuation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.index[tag]; dup {
		panic(fmt.Sprintf("correlation: tag %d already registered", tag))
	}

	var slot int32
	if n := len(r.free); n > 0 {
		slot = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		slot = int32(len(r.arena))
		r.arena = append(r.arena, nil)
	}

	p := &Pending{
		tag:    tag,
		sess:   sess,
		origin: origin,
		req:    req,
		resp:   resp,
		cont:   cont,
		slot:   slot,
	}
	r.arena[slot] = p
	r.index[tag] = slot
	return p
}

// Resolve removes the association for a tag and returns the record with
// the given completion status. An unknown tag indicates a programming
// contract breach, not a runtime condition, and fails fast.
func (r *Registry) Resolve(tag api.Tag, status api.CallStatus) *Pending {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.index[tag]
	if !ok {
		panic(fmt.Sprintf("correlation: resolve of unknown tag %d", tag))
	}
	return r.removeLocked(tag, slot, status)
}

// FailSession force-completes every outstanding call on a session with
// the CallAborted sentinel and an empty response. The returned records
// still need their continuations invoked by the caller, exactly once
// each, so no continuation and no buffer is ever leaked.
func (r *Registry) FailSession(sess api.SessionID) []*Pending {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failed []*Pending
	for tag, slot := range r.index {
		if r.arena[slot].sess != sess {
			continue
		}
		p := r.removeLocked(tag, slot, api.CallAborted)
		p.resp.Resize(0)
		failed = append(failed, p)
	}
	if len(failed) > 0 {
		r.log.Debug("forced failure completion",
			zap.Int32("session", int32(sess)),
			zap.Int("calls", len(failed)))
	}
	return failed
}

// Count returns the number of outstanding calls.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.index)
}

func (r *Registry) removeLocked(tag api.Tag, slot int32, status api.CallStatus) *Pending {
	p := r.arena[slot]
	p.status = status
	r.arena[slot] = nil
	r.free = append(r.free, slot)
	delete(r.index, tag)
	return p
}
