// File: api/handler.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Inbound request handler contract, modeled as an explicit handle with
// exactly-once completion instead of callback-captured raw pointers.

package api

// HandlerPlacement selects the execution context family a request handler
// runs on.
type HandlerPlacement uint8

const (
	// PlaceForeground runs the handler inline on the foreground
	// context during RunPendingWork.
	PlaceForeground HandlerPlacement = iota

	// PlaceBackground dispatches the handler to an auxiliary context,
	// for expensive non-terminal work such as relaying.
	PlaceBackground
)

// RequestHandle represents one inbound request awaiting completion.
// The handler (or a continuation it arms) must complete it exactly once,
// either from the preallocated response buffer or with a dynamic buffer
// whose ownership moves to the engine.
type RequestHandle interface {
	Session() SessionID
	ReqType() uint8

	// Req is the inbound payload. It is transport-owned and remains
	// valid until the handle is completed.
	Req() Buffer

	// PreResp is the small preallocated response buffer. Filling it and
	// calling RespondPrealloc avoids a dynamic allocation.
	PreResp() Buffer

	// RespondPrealloc completes the request with the first n bytes of
	// PreResp.
	RespondPrealloc(n int)

	// RespondDynamic completes the request with a dynamically sized
	// buffer acquired by the caller. Ownership of b transfers with the
	// call; the engine releases it after the payload is handed to the
	// transport.
	RespondDynamic(b Buffer)

	// Completed reports whether a response has been enqueued.
	Completed() bool

	// Origin identifies the execution context the handler ran on. A
	// deferred completion must happen on this context.
	Origin() CtxID
}

// ReqHandler processes one inbound request. running is the execution
// context the handler was placed on. Returning without completing the
// handle is the defining property of a relayed request: completion is then
// deferred to a continuation pinned to the same context.
type ReqHandler func(running CtxID, h RequestHandle)
