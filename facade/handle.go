// File: facade/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/momentics/hioload-rpc/api"
)

// reqHandle is the engine's api.RequestHandle. It owns the copied request
// buffer and the preallocated response buffer until completion, which must
// happen exactly once on the handle's origin context.
type reqHandle struct {
	eng     *Engine
	sess    api.SessionID
	reqType uint8
	reqID   uint64
	req     api.Buffer
	pre     api.Buffer
	origin  api.CtxID

	completed bool
}

var _ api.RequestHandle = (*reqHandle)(nil)

func (h *reqHandle) Session() api.SessionID { return h.sess }
func (h *reqHandle) ReqType() uint8         { return h.reqType }
func (h *reqHandle) Req() api.Buffer        { return h.req }
func (h *reqHandle) PreResp() api.Buffer    { return h.pre }
func (h *reqHandle) Completed() bool        { return h.completed }
func (h *reqHandle) Origin() api.CtxID      { return h.origin }

// RespondPrealloc completes with the first n bytes of the preallocated
// response buffer.
func (h *reqHandle) RespondPrealloc(n int) {
	if n < 0 || n > h.pre.Cap() {
		panic(fmt.Sprintf("facade: prealloc response of %d bytes, capacity %d", n, h.pre.Cap()))
	}
	h.finish(h.pre.Bytes()[:n])
}

// RespondDynamic completes with a caller-acquired buffer whose ownership
// moves with the call; it is released once the payload is handed over.
func (h *reqHandle) RespondDynamic(b api.Buffer) {
	h.finish(b.Bytes())
	h.eng.pool.Release(b)
}

// finish enqueues the response and returns the handle's buffers. A second
// completion is a contract breach.
func (h *reqHandle) finish(payload []byte) {
	if h.completed {
		panic(fmt.Sprintf("facade: request %d completed twice", h.reqID))
	}
	h.completed = true

	if err := h.eng.transport.Respond(h.sess, h.reqID, payload); err != nil {
		h.eng.log.Warn("response not delivered",
			zap.Int32("session", int32(h.sess)),
			zap.Error(err))
	}
	h.eng.pool.Release(h.req)
	h.eng.pool.Release(h.pre)
}
