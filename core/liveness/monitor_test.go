package liveness

import (
	"testing"
	"time"

	"github.com/momentics/hioload-rpc/api"
)

// scriptedProber resolves probes according to a per-session script:
// answer, stay silent, or abort.
type scriptedProber struct {
	silent  map[api.SessionID]bool
	abort   map[api.SessionID]bool
	pending []func()
	issued  map[api.SessionID]int
}

func newScriptedProber() *scriptedProber {
	return &scriptedProber{
		silent: make(map[api.SessionID]bool),
		abort:  make(map[api.SessionID]bool),
		issued: make(map[api.SessionID]int),
	}
}

func (p *scriptedProber) IssueProbe(sess api.SessionID, done func(api.CallStatus)) error {
	p.issued[sess]++
	if p.silent[sess] {
		return nil // never resolves
	}
	st := api.CallOK
	if p.abort[sess] {
		st = api.CallAborted
	}
	// Resolve on a later pump pass, never inline.
	p.pending = append(p.pending, func() { done(st) })
	return nil
}

func (p *scriptedProber) pump(time.Duration) {
	work := p.pending
	p.pending = nil
	for _, fn := range work {
		fn()
	}
}

func TestProbeAnswerKeepsIdle(t *testing.T) {
	p := newScriptedProber()
	var dead []api.SessionID
	m := New(p, 10*time.Millisecond, time.Millisecond,
		func(s api.SessionID) { dead = append(dead, s) }, nil)

	m.Track(1, 100)
	m.VerifyAll(p.pump)

	if st, _ := m.StateOf(1); st != Idle {
		t.Fatalf("state = %v, want idle", st)
	}
	if len(dead) != 0 {
		t.Fatalf("unexpected unresponsive reports: %v", dead)
	}
}

func TestSilentPeerMarkedUnresponsiveWithinBound(t *testing.T) {
	p := newScriptedProber()
	p.silent[1] = true
	var dead []api.SessionID
	m := New(p, 5*time.Millisecond, time.Millisecond,
		func(s api.SessionID) { dead = append(dead, s) }, nil)

	m.Track(1, 100)
	start := time.Now()
	m.VerifyAll(p.pump)
	elapsed := time.Since(start)

	if st, _ := m.StateOf(1); st != Unresponsive {
		t.Fatalf("state = %v, want unresponsive", st)
	}
	if len(dead) != 1 || dead[0] != 1 {
		t.Fatalf("unresponsive reports = %v, want [1]", dead)
	}
	if elapsed > time.Second {
		t.Fatalf("bounded wait took %v", elapsed)
	}
}

func TestAbortedProbeMarksUnresponsive(t *testing.T) {
	p := newScriptedProber()
	p.abort[1] = true
	m := New(p, 5*time.Millisecond, time.Millisecond, nil, nil)

	m.Track(1, 100)
	m.VerifyAll(p.pump)
	if st, _ := m.StateOf(1); st != Unresponsive {
		t.Fatalf("state = %v, want unresponsive", st)
	}
}

func TestSequentialPassProbesEachPeerOnce(t *testing.T) {
	p := newScriptedProber()
	m := New(p, 5*time.Millisecond, time.Millisecond, nil, nil)

	for s := api.SessionID(1); s <= 3; s++ {
		m.Track(s, api.NodeID(100+s))
	}
	m.VerifyAll(p.pump)

	for s := api.SessionID(1); s <= 3; s++ {
		if p.issued[s] != 1 {
			t.Fatalf("session %d probed %d times in one pass, want 1", s, p.issued[s])
		}
	}
}

func TestUnresponsivePeerSkippedOnLaterPasses(t *testing.T) {
	p := newScriptedProber()
	p.silent[1] = true
	m := New(p, 2*time.Millisecond, time.Millisecond, nil, nil)

	m.Track(1, 100)
	m.VerifyAll(p.pump)
	m.VerifyAll(p.pump)
	if p.issued[1] != 1 {
		t.Fatalf("dead peer probed %d times, want 1", p.issued[1])
	}
}

func TestUntrackStopsProbing(t *testing.T) {
	p := newScriptedProber()
	m := New(p, 2*time.Millisecond, time.Millisecond, nil, nil)
	m.Track(1, 100)
	m.Untrack(1)
	m.VerifyAll(p.pump)
	if p.issued[1] != 0 {
		t.Fatalf("untracked peer probed %d times", p.issued[1])
	}
	if _, ok := m.StateOf(1); ok {
		t.Fatal("untracked session still reported")
	}
}
