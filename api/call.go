// File: api/call.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Correlation types for asynchronous calls. A Tag associates one in-flight
// call with the continuation that completes it; the continuation runs
// exactly once, on a later event-processing pass, never on the stack that
// issued the call.

package api

// Tag is an opaque identifier correlating an issued call with its eventual
// continuation. Tags must be unique among the calls concurrently
// outstanding on the same endpoint.
type Tag uint64

// CallStatus is the explicit completion sentinel delivered to a
// continuation. It distinguishes "peer answered with an empty payload"
// from "call aborted" without inspecting payload length.
type CallStatus uint8

const (
	// CallOK means the peer answered; the response buffer holds the
	// payload, which may legitimately be empty.
	CallOK CallStatus = iota

	// CallAborted means the call was force-completed without an answer:
	// the owning session was torn down or declared unresponsive.
	CallAborted
)

func (s CallStatus) String() string {
	switch s {
	case CallOK:
		return "ok"
	case CallAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Call is the typed view of a resolved pending call handed to its
// continuation. The continuation owns the request and response buffers and
// must release both exactly once.
type Call interface {
	Tag() Tag
	Session() SessionID

	// Origin identifies the execution context that issued the call.
	// The final completion of a relayed original request is pinned to
	// this context.
	Origin() CtxID

	// Req is the request buffer registered at issue time.
	Req() Buffer

	// Resp is the response buffer, filled in place before the
	// continuation runs. Its size is meaningful only when Status is
	// CallOK.
	Resp() Buffer

	Status() CallStatus
}

// Continuation completes one pending call. running is the execution
// context invoking it, so callers can assert context-affinity invariants.
type Continuation func(running CtxID, call Call)
