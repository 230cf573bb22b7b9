// File: fake/transport.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// In-memory transport mesh. Each Transport is one endpoint listening on a
// symbolic address; Send moves a copied payload into the peer's inbox and
// the peer's next Poll delivers it. Failure injection covers refused
// connects, silently dropped request types and abrupt session breaks.

package fake

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-rpc/api"
)

// Mesh connects fake transports by address. One mutex guards the whole
// mesh so cross-endpoint operations never deadlock.
type Mesh struct {
	mu        sync.Mutex
	listeners map[string]*Transport
}

// NewMesh constructs an empty mesh.
func NewMesh() *Mesh {
	return &Mesh{listeners: make(map[string]*Transport)}
}

// NewTransport creates an endpoint listening on addr.
func (m *Mesh) NewTransport(addr string) *Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.listeners[addr]; dup {
		panic(fmt.Sprintf("fake: address %q already in use", addr))
	}
	t := &Transport{
		mesh:     m,
		addr:     addr,
		sessions: make(map[api.SessionID]*endpoint),
		pending:  make(map[uint64]inboundOrigin),
		silenced: make(map[uint8]bool),
	}
	m.listeners[addr] = t
	return t
}

// endpoint is one half of an established session pair.
type endpoint struct {
	peer     *Transport
	peerSess api.SessionID
	up       bool
}

// inboundOrigin routes a response for an inbound request back to the
// issuing endpoint.
type inboundOrigin struct {
	from *Transport
	sess api.SessionID
	tag  api.Tag
}

// Transport is one in-memory endpoint implementing api.Transport.
type Transport struct {
	mesh *Mesh
	addr string
	sink api.TransportSink

	// All mutable state below is guarded by mesh.mu.
	inbox     []func(api.TransportSink)
	sessions  map[api.SessionID]*endpoint
	nextSess  api.SessionID
	nextReqID uint64
	pending   map[uint64]inboundOrigin
	silenced  map[uint8]bool
	refusing  bool
}

var _ api.Transport = (*Transport)(nil)

// Bind attaches the sink. Must run before any traffic.
func (t *Transport) Bind(sink api.TransportSink) {
	t.mesh.mu.Lock()
	defer t.mesh.mu.Unlock()
	if t.sink != nil {
		panic("fake: sink bound twice")
	}
	t.sink = sink
}

// Connect pairs this endpoint with the listener on addr. Session events
// are delivered to the connecting side only; the accepting side sees the
// session implicitly through the requests arriving on it.
func (t *Transport) Connect(addr string) (api.SessionID, error) {
	t.mesh.mu.Lock()
	defer t.mesh.mu.Unlock()

	sess := t.nextSess
	t.nextSess++

	remote := t.mesh.listeners[addr]
	if remote == nil || remote.refusing {
		t.sessions[sess] = &endpoint{up: false}
		t.inbox = append(t.inbox, func(s api.TransportSink) {
			s.OnSessionEvent(sess, api.SmConnected, api.SmErrRefused)
		})
		return sess, nil
	}

	peerSess := remote.nextSess
	remote.nextSess++
	t.sessions[sess] = &endpoint{peer: remote, peerSess: peerSess, up: true}
	remote.sessions[peerSess] = &endpoint{peer: t, peerSess: sess, up: true}

	t.inbox = append(t.inbox, func(s api.TransportSink) {
		s.OnSessionEvent(sess, api.SmConnected, api.SmErrNone)
	})
	return sess, nil
}

// Disconnect tears the pair down cleanly and notifies the connecting side.
func (t *Transport) Disconnect(sess api.SessionID) error {
	t.mesh.mu.Lock()
	defer t.mesh.mu.Unlock()

	ep, ok := t.sessions[sess]
	if !ok {
		return api.ErrSessionUnknown
	}
	if !ep.up {
		return api.ErrSessionDown
	}
	t.severLocked(sess, ep)
	t.inbox = append(t.inbox, func(s api.TransportSink) {
		s.OnSessionEvent(sess, api.SmDisconnected, api.SmErrNone)
	})
	return nil
}

// Send copies the payload into the peer's inbox as an inbound request.
// Request types the peer silenced vanish without a trace, which is how
// tests starve a liveness probe.
func (t *Transport) Send(sess api.SessionID, reqType uint8, tag api.Tag, payload []byte) error {
	t.mesh.mu.Lock()
	defer t.mesh.mu.Unlock()

	ep, ok := t.sessions[sess]
	if !ok {
		return api.ErrSessionUnknown
	}
	if !ep.up {
		return api.ErrSessionDown
	}

	remote := ep.peer
	if remote.silenced[reqType] {
		return nil
	}

	reqID := remote.nextReqID
	remote.nextReqID++
	remote.pending[reqID] = inboundOrigin{from: t, sess: sess, tag: tag}

	data := append([]byte(nil), payload...)
	peerSess := ep.peerSess
	remote.inbox = append(remote.inbox, func(s api.TransportSink) {
		s.OnRequest(peerSess, reqType, reqID, data)
	})
	return nil
}

// Respond routes a response back to the endpoint that issued reqID. A
// response for a session that broke in the meantime is dropped.
func (t *Transport) Respond(sess api.SessionID, reqID uint64, payload []byte) error {
	t.mesh.mu.Lock()
	defer t.mesh.mu.Unlock()

	o, ok := t.pending[reqID]
	if !ok {
		return api.ErrInvalidArgument
	}
	delete(t.pending, reqID)

	if ep, ok := o.from.sessions[o.sess]; !ok || !ep.up {
		return nil
	}

	data := append([]byte(nil), payload...)
	o.from.inbox = append(o.from.inbox, func(s api.TransportSink) {
		s.OnResponse(o.sess, o.tag, data, api.CallOK)
	})
	return nil
}

// Poll delivers everything queued for this endpoint. Callbacks run without
// the mesh lock so a sink may call back into the transport.
func (t *Transport) Poll() int {
	t.mesh.mu.Lock()
	if t.sink == nil {
		t.mesh.mu.Unlock()
		panic("fake: poll before bind")
	}
	batch := t.inbox
	t.inbox = nil
	sink := t.sink
	t.mesh.mu.Unlock()

	for _, deliver := range batch {
		deliver(sink)
	}
	return len(batch)
}

// Silence drops every future inbound request of the given type on the
// floor: no handler runs and no response is ever produced.
func (t *Transport) Silence(reqType uint8) {
	t.mesh.mu.Lock()
	t.silenced[reqType] = true
	t.mesh.mu.Unlock()
}

// Unsilence restores delivery of a request type.
func (t *Transport) Unsilence(reqType uint8) {
	t.mesh.mu.Lock()
	delete(t.silenced, reqType)
	t.mesh.mu.Unlock()
}

// Refuse makes future connects to this endpoint fail with a refused
// session event.
func (t *Transport) Refuse(on bool) {
	t.mesh.mu.Lock()
	t.refusing = on
	t.mesh.mu.Unlock()
}

// Sever breaks an established session abruptly, surfacing it to the
// connecting side as an error-typed disconnect.
func (t *Transport) Sever(sess api.SessionID) {
	t.mesh.mu.Lock()
	defer t.mesh.mu.Unlock()

	ep, ok := t.sessions[sess]
	if !ok || !ep.up {
		panic(fmt.Sprintf("fake: sever of unknown or down session %d", sess))
	}
	t.severLocked(sess, ep)
	t.inbox = append(t.inbox, func(s api.TransportSink) {
		s.OnSessionEvent(sess, api.SmDisconnected, api.SmErrBroken)
	})
}

// severLocked downs both halves of a pair. Caller holds mesh.mu.
func (t *Transport) severLocked(sess api.SessionID, ep *endpoint) {
	ep.up = false
	if ep.peer != nil {
		if rep, ok := ep.peer.sessions[ep.peerSess]; ok {
			rep.up = false
		}
	}
}
