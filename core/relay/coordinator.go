// File: core/relay/coordinator.go
// Package relay
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package relay

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/momentics/hioload-rpc/api"
)

// Caller issues outbound calls: it registers the continuation under a
// fresh tag and hands the request to the transport. Implemented by the
// engine facade.
type Caller interface {
	IssueCall(sess api.SessionID, reqType uint8, req, resp api.Buffer,
		origin api.CtxID, cont api.Continuation) (api.Tag, error)
}

// SubCall describes one derived request of a relay fan-out.
type SubCall struct {
	Session api.SessionID
	ReqType uint8

	// Build writes the outbound payload, derived from the inbound
	// request bytes, into dst. It must be a pure transform: dst never
	// aliases req.
	Build func(req []byte, dst api.Buffer)

	// RespCap is the expected response capacity; zero means the
	// inbound request size.
	RespCap int
}

// Result is the outcome of one sub-call, in SubCall order. Resp is a view
// into the sub-response buffer and is valid only while Finish runs.
type Result struct {
	Status api.CallStatus
	Resp   []byte
}

// Finish computes the final response from the sub-results and must
// complete the original request exactly once, with an application-chosen
// failure indication when sub-calls aborted.
type Finish func(h api.RequestHandle, results []Result)

// Coordinator wires relays through a buffer pool and a caller.
type Coordinator struct {
	pool   api.BufferPool
	caller Caller
	log    *zap.Logger
}

// New constructs a Coordinator.
func New(pool api.BufferPool, caller Caller, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{pool: pool, caller: caller, log: log}
}

// forwarded is the state kept across one relayed original request. It is
// touched only by its origin execution context: created by the handler,
// finalized by the last sub-continuation, both pinned to origin.
type forwarded struct {
	h         api.RequestHandle
	origin    api.CtxID
	remaining int
	results   []Result
	reqBufs   []api.Buffer
	respBufs  []api.Buffer
	finish    Finish
	done      bool
}

// Relay leases buffers for each sub-call, derives the outbound payloads,
// arms continuations and issues the sub-requests. It returns without
// completing the original request; completion happens when the last
// sub-call resolves. A sub-request that cannot be issued (session down)
// counts as immediately aborted.
func (c *Coordinator) Relay(h api.RequestHandle, origin api.CtxID,
	subs []SubCall, finish Finish) {
	if len(subs) == 0 {
		panic("relay: empty fan-out")
	}
	if h.Completed() {
		panic("relay: original request already completed")
	}

	f := &forwarded{
		h:         h,
		origin:    origin,
		remaining: len(subs),
		results:   make([]Result, len(subs)),
		reqBufs:   make([]api.Buffer, len(subs)),
		respBufs:  make([]api.Buffer, len(subs)),
		finish:    finish,
	}

	inbound := h.Req().Bytes()
	for i, sub := range subs {
		respCap := sub.RespCap
		if respCap <= 0 {
			respCap = len(inbound)
		}
		f.reqBufs[i] = c.pool.Acquire(len(inbound))
		f.respBufs[i] = c.pool.Acquire(respCap)
		sub.Build(inbound, f.reqBufs[i])
	}

	// Issue after all buffers are built so a synchronous issue failure
	// cannot observe half-initialized state.
	for i, sub := range subs {
		i := i
		_, err := c.caller.IssueCall(sub.Session, sub.ReqType,
			f.reqBufs[i], f.respBufs[i], origin, func(running api.CtxID, call api.Call) {
				c.subResolved(f, i, running, call.Status(), call.Resp().Bytes())
			})
		if err != nil {
			c.log.Warn("relay sub-request not issued",
				zap.Int32("session", int32(sub.Session)),
				zap.Error(err))
			c.subResolved(f, i, origin, api.CallAborted, nil)
		}
	}
}

// subResolved records one sub-outcome and completes the original when the
// fan-out has fully resolved. The original request handle may only be
// completed from its owning execution context; running elsewhere is a
// contract breach.
func (c *Coordinator) subResolved(f *forwarded, i int, running api.CtxID,
	status api.CallStatus, resp []byte) {
	if running != f.origin {
		panic(fmt.Sprintf("relay: continuation on context %d, origin is %d",
			running, f.origin))
	}
	if f.done {
		panic("relay: sub-call resolved after completion")
	}

	f.results[i] = Result{Status: status, Resp: resp}
	f.remaining--
	if f.remaining > 0 {
		return
	}

	f.done = true
	f.finish(f.h, f.results)
	if !f.h.Completed() {
		panic("relay: finish did not complete the original request")
	}
	for i := range f.reqBufs {
		c.pool.Release(f.reqBufs[i])
		c.pool.Release(f.respBufs[i])
	}
}
