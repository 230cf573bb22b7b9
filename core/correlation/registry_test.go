package correlation

import (
	"testing"

	"github.com/momentics/hioload-rpc/api"
	"github.com/momentics/hioload-rpc/pool"
)

func lease(p *pool.Pool) (api.Buffer, api.Buffer) {
	return p.Acquire(32), p.Acquire(32)
}

func TestResolveInvokesOnce(t *testing.T) {
	bp := pool.New(64, 2, nil)
	r := New(nil)

	req, resp := lease(bp)
	fired := 0
	r.Register(7, 1, api.CtxForeground, req, resp, func(running api.CtxID, call api.Call) {
		fired++
		if call.Tag() != 7 || call.Status() != api.CallOK {
			t.Errorf("call = tag %d status %v", call.Tag(), call.Status())
		}
	})
	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}

	p := r.Resolve(7, api.CallOK)
	p.Invoke(api.CtxForeground)
	if fired != 1 {
		t.Fatalf("continuation fired %d times, want 1", fired)
	}
	if r.Count() != 0 {
		t.Fatalf("count after resolve = %d, want 0", r.Count())
	}

	defer func() {
		if recover() == nil {
			t.Fatal("second invocation must panic")
		}
	}()
	p.Invoke(api.CtxForeground)
}

func TestDuplicateTagPanics(t *testing.T) {
	bp := pool.New(64, 4, nil)
	r := New(nil)
	req, resp := lease(bp)
	r.Register(3, 1, 0, req, resp, func(api.CtxID, api.Call) {})

	defer func() {
		if recover() == nil {
			t.Fatal("duplicate tag must panic")
		}
	}()
	req2, resp2 := lease(bp)
	r.Register(3, 1, 0, req2, resp2, func(api.CtxID, api.Call) {})
}

func TestResolveUnknownTagPanics(t *testing.T) {
	r := New(nil)
	defer func() {
		if recover() == nil {
			t.Fatal("unknown tag must panic")
		}
	}()
	r.Resolve(42, api.CallOK)
}

func TestFailSessionForcesAbortedSentinel(t *testing.T) {
	bp := pool.New(64, 8, nil)
	r := New(nil)

	fired := make(map[api.Tag]api.CallStatus)
	for tag := api.Tag(1); tag <= 3; tag++ {
		req, resp := lease(bp)
		sess := api.SessionID(1)
		if tag == 3 {
			sess = 2 // survivor on another session
		}
		r.Register(tag, sess, 0, req, resp, func(running api.CtxID, call api.Call) {
			fired[call.Tag()] = call.Status()
		})
	}

	failed := r.FailSession(1)
	if len(failed) != 2 {
		t.Fatalf("failed %d calls, want 2", len(failed))
	}
	for _, p := range failed {
		if p.Resp().Size() != 0 {
			t.Fatalf("forced failure must carry empty response, got %d bytes", p.Resp().Size())
		}
		p.Invoke(p.Origin())
	}
	if fired[1] != api.CallAborted || fired[2] != api.CallAborted {
		t.Fatalf("statuses = %v, want aborted for tags 1 and 2", fired)
	}
	if _, leaked := fired[3]; leaked {
		t.Fatal("call on another session must not be failed")
	}
	if r.Count() != 1 {
		t.Fatalf("count = %d, want the survivor only", r.Count())
	}
}

func TestOriginRecordedForAffinityAsserts(t *testing.T) {
	bp := pool.New(64, 2, nil)
	r := New(nil)
	req, resp := lease(bp)
	r.Register(9, 1, 2, req, resp, func(running api.CtxID, call api.Call) {
		if call.Origin() != 2 {
			t.Errorf("origin = %d, want 2", call.Origin())
		}
	})
	r.Resolve(9, api.CallOK).Invoke(2)
}

func TestSlotReuseAfterResolve(t *testing.T) {
	bp := pool.New(64, 4, nil)
	r := New(nil)
	for i := 0; i < 100; i++ {
		tag := api.Tag(i)
		req, resp := lease(bp)
		r.Register(tag, 1, 0, req, resp, func(api.CtxID, api.Call) {})
		p := r.Resolve(tag, api.CallOK)
		p.Invoke(0)
		bp.Release(p.Req())
		bp.Release(p.Resp())
	}
	if got := len(r.arena); got != 1 {
		t.Fatalf("arena grew to %d slots for serial calls, want 1", got)
	}
}
