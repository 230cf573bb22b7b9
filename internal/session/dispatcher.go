// File: internal/session/dispatcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session event dispatcher: translates transport session notifications to
// slots in the application's connection table and enforces the lifecycle
// contract (one connected/disconnected pair, errors fatal to the
// session).

package session

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/momentics/hioload-rpc/api"
)

// Status of one connection-table slot.
type Status uint8

const (
	StatusPending Status = iota // created, connect outcome not yet seen
	StatusConnected
	StatusDisconnected
	StatusFailed // error-typed notification observed; unusable
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// record is one connection-table entry.
type record struct {
	sess   api.SessionID
	peer   api.NodeID
	addr   string
	status Status
}

// Dispatcher owns the connection table. Every notification must reference
// a session the application registered; anything else is a fail-fast
// contract breach.
type Dispatcher struct {
	mu     sync.Mutex
	slots  []record
	bySess map[api.SessionID]int

	// onDown runs when a session stops being usable (disconnect or
	// error) so the engine can force-fail its pending calls and stop
	// routing to it.
	onDown func(sess api.SessionID)

	// forward optionally surfaces events to the application.
	forward api.SmHandler

	log *zap.Logger
}

// NewDispatcher constructs an empty connection table.
func NewDispatcher(onDown func(api.SessionID), forward api.SmHandler, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		bySess:  make(map[api.SessionID]int),
		onDown:  onDown,
		forward: forward,
		log:     log,
	}
}

// Register adds a session the application just created and returns its
// slot index in the connection table.
func (d *Dispatcher) Register(sess api.SessionID, peer api.NodeID, addr string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.bySess[sess]; dup {
		panic(fmt.Sprintf("session: session %d registered twice", sess))
	}
	slot := len(d.slots)
	d.slots = append(d.slots, record{sess: sess, peer: peer, addr: addr, status: StatusPending})
	d.bySess[sess] = slot
	return slot
}

// HandleEvent consumes one transport notification. An error-typed
// notification is unconditionally fatal to that session's further use; an
// unknown session or an out-of-order lifecycle transition fails fast.
func (d *Dispatcher) HandleEvent(sess api.SessionID, ev api.SmEventType, errKind api.SmErrType) {
	d.mu.Lock()
	slot, ok := d.bySess[sess]
	if !ok {
		d.mu.Unlock()
		panic(fmt.Sprintf("session: event %v for session %d not created here", ev, sess))
	}
	r := &d.slots[slot]

	if errKind != api.SmErrNone {
		wasUsable := r.status == StatusPending || r.status == StatusConnected
		r.status = StatusFailed
		d.mu.Unlock()
		d.log.Error("session error, marking unusable",
			zap.Int32("session", int32(sess)),
			zap.Int("slot", slot),
			zap.Stringer("event", ev),
			zap.Stringer("error", errKind))
		if wasUsable && d.onDown != nil {
			d.onDown(sess)
		}
		if d.forward != nil {
			d.forward(sess, ev, errKind)
		}
		return
	}

	switch ev {
	case api.SmConnected:
		if r.status != StatusPending {
			d.mu.Unlock()
			panic(fmt.Sprintf("session: connected event for session %d in state %v", sess, r.status))
		}
		r.status = StatusConnected
	case api.SmDisconnected:
		if r.status != StatusConnected {
			d.mu.Unlock()
			panic(fmt.Sprintf("session: disconnected event for session %d in state %v", sess, r.status))
		}
		r.status = StatusDisconnected
	default:
		d.mu.Unlock()
		panic(fmt.Sprintf("session: unexpected event %v", ev))
	}
	d.mu.Unlock()

	d.log.Info("session event",
		zap.Int32("session", int32(sess)),
		zap.Int("slot", slot),
		zap.Stringer("event", ev))

	if ev == api.SmDisconnected && d.onDown != nil {
		d.onDown(sess)
	}
	if d.forward != nil {
		d.forward(sess, ev, api.SmErrNone)
	}
}

// MarkDown force-transitions a session out of use (liveness timeout).
// Idempotent for already-down sessions.
func (d *Dispatcher) MarkDown(sess api.SessionID) {
	d.mu.Lock()
	slot, ok := d.bySess[sess]
	if !ok {
		d.mu.Unlock()
		panic(fmt.Sprintf("session: mark-down of unknown session %d", sess))
	}
	r := &d.slots[slot]
	wasUsable := r.status == StatusConnected || r.status == StatusPending
	if wasUsable {
		r.status = StatusFailed
	}
	d.mu.Unlock()

	if wasUsable && d.onDown != nil {
		d.onDown(sess)
	}
}

// Usable reports whether new requests may be routed to the session.
func (d *Dispatcher) Usable(sess api.SessionID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	slot, ok := d.bySess[sess]
	return ok && d.slots[slot].status == StatusConnected
}

// StatusOf returns the lifecycle status of a registered session.
func (d *Dispatcher) StatusOf(sess api.SessionID) (Status, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	slot, ok := d.bySess[sess]
	if !ok {
		return 0, false
	}
	return d.slots[slot].status, true
}

// SlotOf returns the connection-table index for a session.
func (d *Dispatcher) SlotOf(sess api.SessionID) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	slot, ok := d.bySess[sess]
	return slot, ok
}

// PeerOf returns the application identity behind a session.
func (d *Dispatcher) PeerOf(sess api.SessionID) (api.NodeID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	slot, ok := d.bySess[sess]
	if !ok {
		return 0, false
	}
	return d.slots[slot].peer, true
}

// Range applies fn to every table entry in slot order.
func (d *Dispatcher) Range(fn func(slot int, sess api.SessionID, peer api.NodeID, status Status)) {
	d.mu.Lock()
	snapshot := append([]record(nil), d.slots...)
	d.mu.Unlock()
	for i, r := range snapshot {
		fn(i, r.sess, r.peer, r.status)
	}
}
