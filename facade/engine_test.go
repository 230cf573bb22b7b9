package facade

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-rpc/api"
	"github.com/momentics/hioload-rpc/control"
	"github.com/momentics/hioload-rpc/core/liveness"
	"github.com/momentics/hioload-rpc/core/relay"
	"github.com/momentics/hioload-rpc/fake"
)

const (
	typeIncrClient    uint8 = 16 // client -> primary, relayed
	typeIncrPeer      uint8 = 17 // primary -> backup
	typeVote          uint8 = 18 // consensus collaborator
	typeNeverAnswered uint8 = 33
)

func testCluster(t *testing.T) *control.ClusterConfig {
	t.Helper()
	cc, err := control.NewClusterConfig([]control.Member{
		{ID: 0, Name: "client", Addr: "mem://client"},
		{ID: 1, Name: "primary", Addr: "mem://primary"},
		{ID: 2, Name: "backup", Addr: "mem://backup"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return cc
}

func newNode(t *testing.T, mesh *fake.Mesh, cluster *control.ClusterConfig,
	id api.NodeID, aux int) (*Engine, *fake.Transport) {
	t.Helper()
	addr, err := cluster.Addr(id)
	if err != nil {
		t.Fatal(err)
	}
	tr := mesh.NewTransport(addr)
	e, err := New(Config{
		NodeID:       id,
		Cluster:      cluster,
		Transport:    tr,
		AuxContexts:  aux,
		ProbeTimeout: 20 * time.Millisecond,
		ProbeStep:    time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e, tr
}

// runUntil pumps every engine from this goroutine until cond holds.
func runUntil(engines []*Engine, cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range engines {
			e.RunPendingWork(0)
		}
		if cond() {
			return true
		}
		time.Sleep(100 * time.Microsecond)
	}
	return cond()
}

func connect(t *testing.T, engines []*Engine, from *Engine, to api.NodeID) api.SessionID {
	t.Helper()
	sess, err := from.Connect(to)
	if err != nil {
		t.Fatal(err)
	}
	if !runUntil(engines, func() bool { return from.SessionUsable(sess) }) {
		t.Fatalf("session to node %d never became usable", to)
	}
	return sess
}

func assertNoLeaks(t *testing.T, engines []*Engine) {
	t.Helper()
	runUntil(engines, func() bool {
		for _, e := range engines {
			st := e.Pool().Stats()
			if st.Leased != 0 || st.DynamicLive != 0 {
				return false
			}
		}
		return true
	})
	for i, e := range engines {
		if st := e.Pool().Stats(); st.Leased != 0 || st.DynamicLive != 0 {
			t.Fatalf("node %d leaks buffers: %+v", i, st)
		}
	}
}

// runRelayedIncrement drives the three-hop scenario: the client sends a
// 64-byte payload, the primary relays it to the backup with a byte-wise
// increment, the backup increments and answers, the primary increments the
// sub-response and completes. The client must observe every byte
// incremented three times.
func runRelayedIncrement(t *testing.T, placement api.HandlerPlacement, aux int) {
	mesh := fake.NewMesh()
	cluster := testCluster(t)
	client, _ := newNode(t, mesh, cluster, 0, 0)
	primary, _ := newNode(t, mesh, cluster, 1, aux)
	backup, _ := newNode(t, mesh, cluster, 2, 0)
	engines := []*Engine{client, primary, backup}

	var backupSess api.SessionID
	err := primary.RegisterHandler(typeIncrClient, func(running api.CtxID, h api.RequestHandle) {
		primary.Relay(h, running, []relay.SubCall{{
			Session: backupSess,
			ReqType: typeIncrPeer,
			Build: func(req []byte, dst api.Buffer) {
				dst.Resize(len(req))
				d := dst.Bytes()
				for i, c := range req {
					d[i] = c + 1
				}
			},
		}}, func(h api.RequestHandle, results []relay.Result) {
			if results[0].Status != api.CallOK {
				h.RespondPrealloc(0)
				return
			}
			sub := results[0].Resp
			d := h.PreResp().Bytes()[:len(sub)]
			for i, c := range sub {
				d[i] = c + 1
			}
			h.RespondPrealloc(len(sub))
		})
	}, placement)
	if err != nil {
		t.Fatal(err)
	}

	err = backup.RegisterHandler(typeIncrPeer, func(_ api.CtxID, h api.RequestHandle) {
		in := h.Req().Bytes()
		out := backup.Pool().Acquire(len(in))
		d := out.Bytes()
		for i, c := range in {
			d[i] = c + 1
		}
		h.RespondDynamic(out)
	}, api.PlaceForeground)
	if err != nil {
		t.Fatal(err)
	}

	for _, e := range engines {
		e.Start()
	}
	defer func() {
		for _, e := range engines {
			e.Stop()
		}
	}()

	backupSess = connect(t, engines, primary, 2)
	clientSess := connect(t, engines, client, 1)

	req := client.Pool().Acquire(64)
	resp := client.Pool().Acquire(64)
	for i := range req.Bytes() {
		req.Bytes()[i] = 10
	}

	var done bool
	var status api.CallStatus
	var got []byte
	_, err = client.EnqueueRequest(clientSess, typeIncrClient, req, resp,
		func(running api.CtxID, call api.Call) {
			if running != api.CtxForeground {
				t.Errorf("continuation ran on context %d, want foreground", running)
			}
			status = call.Status()
			got = append([]byte(nil), call.Resp().Bytes()...)
			client.Pool().Release(call.Req())
			client.Pool().Release(call.Resp())
			done = true
		})
	if err != nil {
		t.Fatal(err)
	}

	if !runUntil(engines, func() bool { return done }) {
		t.Fatal("relayed call never completed")
	}
	if status != api.CallOK {
		t.Fatalf("status = %v, want ok", status)
	}
	if len(got) != 64 {
		t.Fatalf("response size = %d, want 64", len(got))
	}
	for i, c := range got {
		if c != 13 {
			t.Fatalf("byte %d = %d, want 13 after three increments", i, c)
		}
	}
	assertNoLeaks(t, engines)
}

func TestRelayedIncrementForeground(t *testing.T) {
	runRelayedIncrement(t, api.PlaceForeground, 0)
}

func TestRelayedIncrementBackground(t *testing.T) {
	runRelayedIncrement(t, api.PlaceBackground, 2)
}

// servePrimary drives a peer engine from its own goroutine while the test
// goroutine blocks inside a liveness pass.
func servePrimary(e *Engine) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				e.RunPendingWork(time.Millisecond)
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func TestLivenessPassKeepsResponsivePeer(t *testing.T) {
	mesh := fake.NewMesh()
	cluster := testCluster(t)
	client, _ := newNode(t, mesh, cluster, 0, 0)
	primary, _ := newNode(t, mesh, cluster, 1, 0)

	sess := connect(t, []*Engine{client, primary}, client, 1)

	stop := servePrimary(primary)
	client.VerifyLiveness()
	stop()

	if st, ok := client.LivenessState(sess); !ok || st != liveness.Idle {
		t.Fatalf("liveness state = %v (tracked=%v), want idle", st, ok)
	}
	if !client.SessionUsable(sess) {
		t.Fatal("responsive peer must stay usable")
	}
	assertNoLeaks(t, []*Engine{client, primary})
}

func TestLivenessTimeoutForcesPendingFailure(t *testing.T) {
	mesh := fake.NewMesh()
	cluster := testCluster(t)
	client, _ := newNode(t, mesh, cluster, 0, 0)
	primary, primaryTr := newNode(t, mesh, cluster, 1, 0)
	engines := []*Engine{client, primary}

	sess := connect(t, engines, client, 1)

	// The peer goes quiet: neither probes nor application requests are
	// ever answered.
	primaryTr.Silence(PingReqType)
	primaryTr.Silence(typeNeverAnswered)

	req := client.Pool().Acquire(16)
	resp := client.Pool().Acquire(16)
	var done bool
	var status api.CallStatus
	var respSize int
	_, err := client.EnqueueRequest(sess, typeNeverAnswered, req, resp,
		func(_ api.CtxID, call api.Call) {
			status = call.Status()
			respSize = call.Resp().Size()
			client.Pool().Release(call.Req())
			client.Pool().Release(call.Resp())
			done = true
		})
	if err != nil {
		t.Fatal(err)
	}
	runUntil(engines, func() bool { return true })

	client.VerifyLiveness()
	client.RunPendingWork(0)

	if !done {
		t.Fatal("pending call must be force-completed by the liveness timeout")
	}
	if status != api.CallAborted {
		t.Fatalf("status = %v, want aborted", status)
	}
	if respSize != 0 {
		t.Fatalf("forced failure carried %d response bytes, want 0", respSize)
	}
	if client.SessionUsable(sess) {
		t.Fatal("unresponsive peer must not stay usable")
	}
	if _, tracked := client.LivenessState(sess); tracked {
		t.Fatal("dead session must leave the probe set")
	}
	assertNoLeaks(t, engines)
}

func TestSeveredSessionAbortsPending(t *testing.T) {
	mesh := fake.NewMesh()
	cluster := testCluster(t)
	client, clientTr := newNode(t, mesh, cluster, 0, 0)
	primary, primaryTr := newNode(t, mesh, cluster, 1, 0)
	engines := []*Engine{client, primary}

	sess := connect(t, engines, client, 1)
	primaryTr.Silence(typeNeverAnswered)

	req := client.Pool().Acquire(16)
	resp := client.Pool().Acquire(16)
	var done bool
	var status api.CallStatus
	_, err := client.EnqueueRequest(sess, typeNeverAnswered, req, resp,
		func(_ api.CtxID, call api.Call) {
			status = call.Status()
			client.Pool().Release(call.Req())
			client.Pool().Release(call.Resp())
			done = true
		})
	if err != nil {
		t.Fatal(err)
	}
	runUntil(engines, func() bool { return true })

	clientTr.Sever(sess)
	if !runUntil(engines, func() bool { return done }) {
		t.Fatal("severed session must force-complete its pending call")
	}
	if status != api.CallAborted {
		t.Fatalf("status = %v, want aborted", status)
	}
	if client.SessionUsable(sess) {
		t.Fatal("severed session must not stay usable")
	}
	if _, err := client.EnqueueRequest(sess, typeNeverAnswered, req, resp, func(api.CtxID, api.Call) {}); err != api.ErrSessionDown {
		t.Fatalf("enqueue on severed session = %v, want ErrSessionDown", err)
	}
	assertNoLeaks(t, engines)
}

func TestConsensusRoundTrip(t *testing.T) {
	mesh := fake.NewMesh()
	cluster := testCluster(t)
	client, _ := newNode(t, mesh, cluster, 0, 0)
	primary, _ := newNode(t, mesh, cluster, 1, 0)
	engines := []*Engine{client, primary}

	var counter fake.Counter
	if err := primary.RegisterHandler(typeVote, ConsensusHandler(counter.Step), api.PlaceForeground); err != nil {
		t.Fatal(err)
	}

	sess := connect(t, engines, client, 1)

	apply := func(delta uint64) uint64 {
		req := client.Pool().Acquire(64)
		resp := client.Pool().Acquire(16)
		EncodePeerMessage(0, fake.EncodeDelta(delta), req)

		var done bool
		var value uint64
		_, err := client.EnqueueRequest(sess, typeVote, req, resp,
			func(_ api.CtxID, call api.Call) {
				if call.Status() != api.CallOK {
					t.Errorf("vote status = %v, want ok", call.Status())
				} else if call.Resp().Size() != 8 {
					t.Errorf("vote response size = %d, want 8", call.Resp().Size())
				} else {
					value = binary.LittleEndian.Uint64(call.Resp().Bytes())
				}
				client.Pool().Release(call.Req())
				client.Pool().Release(call.Resp())
				done = true
			})
		if err != nil {
			t.Fatal(err)
		}
		if !runUntil(engines, func() bool { return done }) {
			t.Fatal("vote never completed")
		}
		return value
	}

	if v := apply(5); v != 5 {
		t.Fatalf("counter = %d, want 5", v)
	}
	if v := apply(7); v != 12 {
		t.Fatalf("counter = %d, want 12", v)
	}
	if peers := counter.Peers(); len(peers) != 2 || peers[0] != 0 || peers[1] != 0 {
		t.Fatalf("peers = %v, want the client identity twice", peers)
	}
	assertNoLeaks(t, engines)
}

func TestHandlerRegistrationGuards(t *testing.T) {
	mesh := fake.NewMesh()
	cluster := testCluster(t)
	e, _ := newNode(t, mesh, cluster, 0, 0)

	noop := func(api.CtxID, api.RequestHandle) {}
	if err := e.RegisterHandler(typeVote, noop, api.PlaceForeground); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterHandler(typeVote, noop, api.PlaceForeground); err != api.ErrHandlerExists {
		t.Fatalf("duplicate registration = %v, want ErrHandlerExists", err)
	}
	if err := e.RegisterHandler(PingReqType, noop, api.PlaceForeground); err != api.ErrHandlerExists {
		t.Fatalf("probe type registration = %v, want ErrHandlerExists", err)
	}
	if err := e.RegisterHandler(typeIncrPeer, nil, api.PlaceForeground); err != api.ErrInvalidArgument {
		t.Fatalf("nil handler = %v, want ErrInvalidArgument", err)
	}
}
