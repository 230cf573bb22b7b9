// File: api/transport.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wire-transport collaborator contract. Framing, reliability and the
// connection handshake are the transport's concern; hioload-rpc consumes
// it exclusively through this interface and receives every asynchronous
// outcome through the TransportSink it binds.

package api

// Transport is the external RPC transport. All methods are asynchronous:
// outcomes surface via the bound TransportSink during Poll.
type Transport interface {
	// Bind attaches the sink receiving arrivals, completions and
	// session events. Must be called once before any other method.
	Bind(sink TransportSink)

	// Connect initiates a session to a peer address. The result is
	// reported through OnSessionEvent.
	Connect(addr string) (SessionID, error)

	// Disconnect initiates session teardown, reported through
	// OnSessionEvent.
	Disconnect(sess SessionID) error

	// Send enqueues an outbound request on a session. The eventual
	// response (or forced failure) is delivered to OnResponse keyed by
	// tag.
	Send(sess SessionID, reqType uint8, tag Tag, payload []byte) error

	// Respond completes an inbound request previously delivered through
	// OnRequest.
	Respond(sess SessionID, reqID uint64, payload []byte) error

	// Poll delivers pending work to the sink: at least one pass of
	// arrivals, completions and session events. Returns the number of
	// events delivered. The host must call it repeatedly.
	Poll() int
}

// TransportSink receives transport outcomes. Implemented by the engine;
// payload slices are transport-owned and valid only for the duration of
// the callback.
type TransportSink interface {
	// OnRequest delivers one inbound request. The receiver must
	// eventually call Transport.Respond with reqID exactly once.
	OnRequest(sess SessionID, reqType uint8, reqID uint64, payload []byte)

	// OnResponse delivers the resolution of an outbound request. status
	// CallAborted carries no payload.
	OnResponse(sess SessionID, tag Tag, payload []byte, status CallStatus)

	// OnSessionEvent delivers one lifecycle transition, exactly once
	// per transition.
	OnSessionEvent(sess SessionID, ev SmEventType, errKind SmErrType)
}
