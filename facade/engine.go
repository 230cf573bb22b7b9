// File: facade/engine.go
// Unified facade layer for hioload-rpc.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// This file defines the Engine struct, which aggregates all core components
// of hioload-rpc behind a single facade. It owns the buffer pool, the
// correlation registry, the execution contexts, the session table, the relay
// coordinator and the liveness monitor, and implements the transport sink
// translating wire events into engine state transitions. The facade exposes
// methods to start/stop the engine, connect to cluster peers, register
// request handlers, issue calls, relay requests and drive pending work.

package facade

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-rpc/api"
	"github.com/momentics/hioload-rpc/control"
	"github.com/momentics/hioload-rpc/core/correlation"
	"github.com/momentics/hioload-rpc/core/liveness"
	"github.com/momentics/hioload-rpc/core/relay"
	"github.com/momentics/hioload-rpc/internal/concurrency"
	"github.com/momentics/hioload-rpc/internal/session"
	"github.com/momentics/hioload-rpc/pool"
)

const (
	// PingReqType is the reserved request type of the built-in liveness
	// probe handler. Applications must not register it.
	PingReqType uint8 = 201

	// PingMsgSize is the fixed probe payload size.
	PingMsgSize = 32
)

// Config holds parameters immutable per run.
type Config struct {
	NodeID  api.NodeID
	Cluster *control.ClusterConfig

	// Transport is the bound wire transport. Required.
	Transport api.Transport

	// BlockCap and InitialBlocks size the payload buffer pool; zero
	// values fall back to the pool defaults.
	BlockCap      int
	InitialBlocks int

	// AuxContexts is the number of auxiliary execution contexts for
	// background handler placement. Zero means background handlers fall
	// back to the foreground context.
	AuxContexts int

	// ProbeTimeout and ProbeStep bound the liveness verification pass;
	// zero values fall back to the liveness defaults.
	ProbeTimeout time.Duration
	ProbeStep    time.Duration

	// PinAux pins each auxiliary context goroutine to a CPU.
	PinAux bool

	// SmHandler optionally receives session events after the engine has
	// consumed them.
	SmHandler api.SmHandler

	Logger *zap.Logger
}

// handlerEntry binds one request type to its handler and placement.
type handlerEntry struct {
	fn        api.ReqHandler
	placement api.HandlerPlacement
}

// Engine aggregates the engine components behind one object. The host
// drives it from a single thread via RunPendingWork; auxiliary contexts
// run on engine-owned goroutines between Start and Stop.
type Engine struct {
	cfg Config
	log *zap.Logger

	pool      *pool.Pool
	registry  *correlation.Registry
	contexts  *concurrency.Group
	sessions  *session.Dispatcher
	monitor   *liveness.Monitor
	coord     *relay.Coordinator
	transport api.Transport

	handlers [256]*handlerEntry
	nextTag  atomic.Uint64

	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
}

var (
	_ api.TransportSink = (*Engine)(nil)
	_ relay.Caller      = (*Engine)(nil)
	_ liveness.Prober   = (*Engine)(nil)
)

// New wires the engine together, binds it to the transport and installs
// the built-in probe handler.
func New(cfg Config) (*Engine, error) {
	if cfg.Transport == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "facade: nil transport")
	}
	if cfg.Cluster == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "facade: nil cluster config")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		cfg:       cfg,
		log:       log,
		pool:      pool.New(cfg.BlockCap, cfg.InitialBlocks, log),
		registry:  correlation.New(log),
		contexts:  concurrency.NewGroup(cfg.AuxContexts, log),
		transport: cfg.Transport,
	}
	e.sessions = session.NewDispatcher(e.sessionDown, cfg.SmHandler, log)
	e.monitor = liveness.New(e, cfg.ProbeTimeout, cfg.ProbeStep, e.peerUnresponsive, log)
	e.coord = relay.New(e.pool, e, log)

	e.handlers[PingReqType] = &handlerEntry{fn: pingHandler, placement: api.PlaceForeground}
	e.transport.Bind(e)

	log.Info("engine initialized",
		zap.Int("node", int(cfg.NodeID)),
		zap.Int("cluster_size", cfg.Cluster.Size()),
		zap.Int("aux_contexts", cfg.AuxContexts))
	return e, nil
}

// RegisterHandler installs the handler for a request type. Must run before
// Start; the probe type is reserved.
func (e *Engine) RegisterHandler(reqType uint8, fn api.ReqHandler, placement api.HandlerPlacement) error {
	if e.started {
		panic("facade: handler registered after start")
	}
	if fn == nil {
		return api.ErrInvalidArgument
	}
	if e.handlers[reqType] != nil {
		return api.ErrHandlerExists
	}
	e.handlers[reqType] = &handlerEntry{fn: fn, placement: placement}
	return nil
}

// Start launches the auxiliary context goroutines.
func (e *Engine) Start() {
	if e.started {
		panic("facade: engine started twice")
	}
	e.stop = make(chan struct{})
	for i, c := range e.contexts.Aux() {
		e.wg.Add(1)
		go func(cpu int, c *concurrency.ExecContext) {
			defer e.wg.Done()
			if e.cfg.PinAux {
				if err := concurrency.PinCurrentThread(cpu); err != nil {
					e.log.Warn("cpu pinning failed", zap.Int("cpu", cpu), zap.Error(err))
				} else {
					defer concurrency.UnpinCurrentThread()
				}
			}
			c.Serve(e.stop)
		}(i, c)
	}
	e.started = true
}

// Stop drains the auxiliary contexts and joins their goroutines.
func (e *Engine) Stop() {
	if !e.started {
		return
	}
	close(e.stop)
	e.wg.Wait()
	e.started = false
}

// Connect initiates a session to a cluster peer and enters it into the
// connection table. The session becomes usable once the transport reports
// the connected event during a later RunPendingWork pass.
func (e *Engine) Connect(node api.NodeID) (api.SessionID, error) {
	addr, err := e.cfg.Cluster.Addr(node)
	if err != nil {
		return api.SessionNone, err
	}
	sess, err := e.transport.Connect(addr)
	if err != nil {
		return api.SessionNone, err
	}
	slot := e.sessions.Register(sess, node, addr)
	e.log.Info("connecting",
		zap.String("peer", e.cfg.Cluster.Name(node)),
		zap.String("addr", addr),
		zap.Int32("session", int32(sess)),
		zap.Int("slot", slot))
	return sess, nil
}

// Disconnect initiates clean session teardown.
func (e *Engine) Disconnect(sess api.SessionID) error {
	return e.transport.Disconnect(sess)
}

// SessionUsable reports whether requests may be routed to the session.
func (e *Engine) SessionUsable(sess api.SessionID) bool {
	return e.sessions.Usable(sess)
}

// LivenessState returns the probe state of a tracked session.
func (e *Engine) LivenessState(sess api.SessionID) (liveness.State, bool) {
	return e.monitor.StateOf(sess)
}

// Pool exposes the payload buffer pool for application request and
// response buffers.
func (e *Engine) Pool() api.BufferPool { return e.pool }

// EnqueueRequest issues an asynchronous call from the host thread. The
// continuation runs on a later RunPendingWork pass on the foreground
// context, never on this stack. Ownership of req and resp transfers to
// the engine until the continuation runs.
func (e *Engine) EnqueueRequest(sess api.SessionID, reqType uint8,
	req, resp api.Buffer, cont api.Continuation) (api.Tag, error) {
	return e.IssueCall(sess, reqType, req, resp, api.CtxForeground, cont)
}

// IssueCall registers the continuation under a fresh tag and hands the
// request to the transport. On an issue error the registration is undone
// and buffer ownership stays with the caller.
func (e *Engine) IssueCall(sess api.SessionID, reqType uint8, req, resp api.Buffer,
	origin api.CtxID, cont api.Continuation) (api.Tag, error) {
	if !e.sessions.Usable(sess) {
		return 0, api.ErrSessionDown
	}
	tag := api.Tag(e.nextTag.Add(1))
	e.registry.Register(tag, sess, origin, req, resp, cont)

	if err := e.transport.Send(sess, reqType, tag, req.Bytes()); err != nil {
		e.registry.Resolve(tag, api.CallAborted)
		control.PendingCalls.Set(float64(e.registry.Count()))
		return 0, err
	}
	control.CallsIssued.WithLabelValues(strconv.Itoa(int(reqType))).Inc()
	control.PendingCalls.Set(float64(e.registry.Count()))
	return tag, nil
}

// Relay forwards the inbound request h as the given sub-calls. The
// original request completes from finish once the fan-out fully resolves,
// on the same execution context the handler ran on.
func (e *Engine) Relay(h api.RequestHandle, running api.CtxID,
	subs []relay.SubCall, finish relay.Finish) {
	e.coord.Relay(h, running, subs, func(h api.RequestHandle, results []relay.Result) {
		finish(h, results)
		control.RelaysCompleted.Inc()
	})
}

// RunPendingWork drives the engine from the host thread for up to maxWait:
// transport polling plus foreground context tasks. With maxWait zero it
// performs exactly one pass. Returns the number of events and tasks
// processed.
func (e *Engine) RunPendingWork(maxWait time.Duration) int {
	deadline := time.Now().Add(maxWait)
	worked := 0
	for {
		n := e.transport.Poll()
		n += e.contexts.Foreground().RunPendingWork(0)
		worked += n
		control.PoolLeased.Set(float64(e.pool.Stats().Leased))
		if maxWait == 0 || !time.Now().Before(deadline) {
			return worked
		}
		if n == 0 {
			time.Sleep(50 * time.Microsecond)
		}
	}
}

// VerifyLiveness performs one sequential probe pass over the established
// sessions, pumping the engine while each probe is outstanding. Must run
// on the host thread.
func (e *Engine) VerifyLiveness() {
	e.monitor.VerifyAll(func(maxWait time.Duration) {
		e.RunPendingWork(maxWait)
	})
}

// OnRequest dispatches one inbound request to its handler's execution
// context. The transport-owned payload is copied into a pooled buffer
// before the callback returns.
func (e *Engine) OnRequest(sess api.SessionID, reqType uint8, reqID uint64, payload []byte) {
	ent := e.handlers[reqType]
	if ent == nil {
		panic(fmt.Sprintf("facade: no handler for request type %d", reqType))
	}

	req := e.pool.Acquire(len(payload))
	copy(req.Bytes(), payload)
	pre := e.pool.Acquire(e.pool.BlockCap())

	ctx := e.contexts.Foreground()
	if ent.placement == api.PlaceBackground {
		ctx = e.contexts.NextAux()
	}
	h := &reqHandle{
		eng:     e,
		sess:    sess,
		reqType: reqType,
		reqID:   reqID,
		req:     req,
		pre:     pre,
		origin:  ctx.ID(),
	}
	ctx.Post(func(running api.CtxID) {
		ent.fn(running, h)
	})
}

// OnResponse resolves the pending call for a tag, fills its armed response
// buffer in place and posts the continuation to the issuing context. A
// late response on a session already torn down is dropped: its calls were
// force-completed when the session went down.
func (e *Engine) OnResponse(sess api.SessionID, tag api.Tag, payload []byte, status api.CallStatus) {
	if !e.sessions.Usable(sess) {
		e.log.Debug("late response dropped",
			zap.Int32("session", int32(sess)),
			zap.Uint64("tag", uint64(tag)))
		return
	}

	p := e.registry.Resolve(tag, status)
	if status == api.CallOK {
		if len(payload) > p.Resp().Cap() {
			panic(fmt.Sprintf("facade: response of %d bytes exceeds armed capacity %d",
				len(payload), p.Resp().Cap()))
		}
		p.Resp().Resize(len(payload))
		copy(p.Resp().Bytes(), payload)
	} else {
		p.Resp().Resize(0)
	}
	control.PendingCalls.Set(float64(e.registry.Count()))

	e.contexts.Get(p.Origin()).Post(func(running api.CtxID) {
		e.finishCall(running, p)
	})
}

// OnSessionEvent feeds the session table and starts liveness tracking once
// a session is established.
func (e *Engine) OnSessionEvent(sess api.SessionID, ev api.SmEventType, errKind api.SmErrType) {
	e.sessions.HandleEvent(sess, ev, errKind)
	if errKind == api.SmErrNone && ev == api.SmConnected {
		if peer, ok := e.sessions.PeerOf(sess); ok {
			e.monitor.Track(sess, peer)
		}
	}
}

// IssueProbe sends one fixed-size probe request. The done callback runs
// from the probe continuation on the foreground context.
func (e *Engine) IssueProbe(sess api.SessionID, done func(api.CallStatus)) error {
	req := e.pool.Acquire(PingMsgSize)
	resp := e.pool.Acquire(PingMsgSize)
	_, err := e.IssueCall(sess, PingReqType, req, resp, api.CtxForeground,
		func(running api.CtxID, call api.Call) {
			st := call.Status()
			e.pool.Release(call.Req())
			e.pool.Release(call.Resp())
			control.ProbesTotal.WithLabelValues(st.String()).Inc()
			done(st)
		})
	if err != nil {
		e.pool.Release(req)
		e.pool.Release(resp)
		control.ProbesTotal.WithLabelValues("unissued").Inc()
		return err
	}
	return nil
}

// finishCall runs one continuation on its issuing context.
func (e *Engine) finishCall(running api.CtxID, p *correlation.Pending) {
	control.CallsCompleted.WithLabelValues(p.Status().String()).Inc()
	p.Invoke(running)
}

// sessionDown force-completes every outstanding call on a dead session
// and stops probing it. Continuations run with the CallAborted sentinel
// on their issuing contexts, exactly once each.
func (e *Engine) sessionDown(sess api.SessionID) {
	if _, tracked := e.monitor.StateOf(sess); tracked {
		e.monitor.Untrack(sess)
	}
	failed := e.registry.FailSession(sess)
	for _, p := range failed {
		p := p
		e.contexts.Get(p.Origin()).Post(func(running api.CtxID) {
			e.finishCall(running, p)
		})
	}
	control.PendingCalls.Set(float64(e.registry.Count()))
	if len(failed) > 0 {
		e.log.Warn("session down, calls force-failed",
			zap.Int32("session", int32(sess)),
			zap.Int("calls", len(failed)))
	}
}

// peerUnresponsive transitions a probe-timeout session out of use.
func (e *Engine) peerUnresponsive(sess api.SessionID) {
	e.sessions.MarkDown(sess)
}

// pingHandler answers the built-in probe with a fixed-size payload.
func pingHandler(_ api.CtxID, h api.RequestHandle) {
	h.RespondPrealloc(PingMsgSize)
}
