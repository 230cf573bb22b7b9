// File: core/liveness/monitor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection liveness probing. One zero-payload probe is outstanding
// per connection at a time; a verification pass walks the known peers
// sequentially, letting each probe fully resolve (complete or time out)
// before the next peer is probed. Liveness is off the latency-critical
// path, so the pass trades latency for simplicity.

package liveness

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-rpc/api"
)

// State of one monitored connection.
type State uint8

const (
	Idle State = iota
	ProbeInFlight
	Unresponsive
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ProbeInFlight:
		return "probe-in-flight"
	case Unresponsive:
		return "unresponsive"
	default:
		return "unknown"
	}
}

const (
	// DefaultTimeout is the bounded wait for a probe answer.
	DefaultTimeout = 50 * time.Millisecond

	// DefaultStep is the event-loop slice used while waiting.
	DefaultStep = time.Millisecond
)

// Prober issues one probe on a session. done runs exactly once from a
// later completion pass on the probing context.
type Prober interface {
	IssueProbe(sess api.SessionID, done func(api.CallStatus)) error
}

// Pump drives one slice of event processing while a probe is in flight.
type Pump func(maxWait time.Duration)

// Record tracks liveness of one established connection.
type Record struct {
	Sess      api.SessionID
	Peer      api.NodeID
	State     State
	LastProbe time.Time
}

// Monitor probes tracked connections. It is confined to the verification
// context (the one whose Pump it is given), so it carries no lock.
type Monitor struct {
	records map[api.SessionID]*Record
	order   []api.SessionID

	prober  Prober
	timeout time.Duration
	step    time.Duration

	// onUnresponsive reports a dead connection so the session layer can
	// stop routing to it and force-fail its pending calls.
	onUnresponsive func(sess api.SessionID)

	log *zap.Logger
}

// New constructs a Monitor. Zero durations fall back to the defaults.
func New(prober Prober, timeout, step time.Duration,
	onUnresponsive func(api.SessionID), log *zap.Logger) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if step <= 0 {
		step = DefaultStep
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		records:        make(map[api.SessionID]*Record),
		prober:         prober,
		timeout:        timeout,
		step:           step,
		onUnresponsive: onUnresponsive,
		log:            log,
	}
}

// Track starts monitoring an established connection.
func (m *Monitor) Track(sess api.SessionID, peer api.NodeID) {
	if _, dup := m.records[sess]; dup {
		panic(fmt.Sprintf("liveness: session %d tracked twice", sess))
	}
	m.records[sess] = &Record{Sess: sess, Peer: peer, State: Idle}
	m.order = append(m.order, sess)
}

// Untrack stops monitoring a torn-down connection.
func (m *Monitor) Untrack(sess api.SessionID) {
	delete(m.records, sess)
	for i, s := range m.order {
		if s == sess {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// StateOf returns the liveness state of a tracked session.
func (m *Monitor) StateOf(sess api.SessionID) (State, bool) {
	r, ok := m.records[sess]
	if !ok {
		return 0, false
	}
	return r.State, true
}

// VerifyAll performs one sequential verification pass over every tracked
// connection, pumping the event loop while each probe is outstanding.
// Connections already marked unresponsive are skipped.
func (m *Monitor) VerifyAll(pump Pump) {
	for _, sess := range append([]api.SessionID(nil), m.order...) {
		r, ok := m.records[sess]
		if !ok || r.State == Unresponsive {
			continue
		}
		m.probe(r, pump)
	}
}

// probe issues one probe and waits, in event-loop slices, until it
// resolves or the bounded wait elapses.
func (m *Monitor) probe(r *Record, pump Pump) {
	resolved := false
	answered := false

	r.State = ProbeInFlight
	r.LastProbe = time.Now()
	err := m.prober.IssueProbe(r.Sess, func(st api.CallStatus) {
		resolved = true
		answered = st == api.CallOK
	})
	if err != nil {
		m.markUnresponsive(r)
		return
	}

	waited := time.Duration(0)
	for !resolved && waited < m.timeout {
		pump(m.step)
		waited += m.step
	}

	if resolved && answered {
		r.State = Idle
		return
	}
	// No answer within the bound, or the probe was force-failed.
	m.markUnresponsive(r)
}

func (m *Monitor) markUnresponsive(r *Record) {
	r.State = Unresponsive
	m.log.Warn("peer unresponsive",
		zap.Int32("session", int32(r.Sess)),
		zap.Int("peer", int(r.Peer)),
		zap.Duration("timeout", m.timeout))
	if m.onUnresponsive != nil {
		m.onUnresponsive(r.Sess)
	}
}
