package pool_test

import (
	"sync"
	"testing"

	"github.com/momentics/hioload-rpc/api"
	"github.com/momentics/hioload-rpc/pool"
)

func TestAcquireReuse(t *testing.T) {
	p := pool.New(128, 2, nil)
	b1 := p.Acquire(64)
	if !b1.Pooled() {
		t.Fatal("small acquisition must be pool-leased")
	}
	if b1.Size() != 64 || b1.Cap() != 128 {
		t.Fatalf("size/cap = %d/%d, want 64/128", b1.Size(), b1.Cap())
	}
	p.Release(b1)
	b2 := p.Acquire(32)
	if cap(b2.Bytes()) == 0 {
		t.Fatal("expected reused block")
	}
	p.Release(b2)
	if st := p.Stats(); st.Leased != 0 || st.FreeBlocks != st.TotalBlocks {
		t.Fatalf("pool not settled: %+v", st)
	}
}

func TestGeometricGrowth(t *testing.T) {
	// Initial capacity 1 block: five acquisitions must trigger exactly
	// three growth events granting 1, 2 and 4 blocks (last oversized).
	p := pool.New(64, 1, nil)

	bufs := make([]api.Buffer, 5)
	for i := range bufs {
		bufs[i] = p.Acquire(16)
	}
	st := p.Stats()
	if st.GrowthEvents != 3 {
		t.Fatalf("growth events = %d, want 3", st.GrowthEvents)
	}
	if st.TotalBlocks != 8 {
		t.Fatalf("total blocks = %d, want 8", st.TotalBlocks)
	}
	if st.Leased != 5 {
		t.Fatalf("leased = %d, want 5", st.Leased)
	}

	for _, b := range bufs {
		p.Release(b)
	}
	st = p.Stats()
	if st.Leased != 0 {
		t.Fatalf("leased after releases = %d, want 0", st.Leased)
	}
	if st.FreeBlocks != st.TotalBlocks {
		t.Fatalf("free %d != total %d after settling", st.FreeBlocks, st.TotalBlocks)
	}
}

func TestDynamicPath(t *testing.T) {
	p := pool.New(64, 1, nil)
	b := p.Acquire(1000)
	if b.Pooled() {
		t.Fatal("oversized acquisition must be dynamic")
	}
	if b.Cap() != 1000 || b.Size() != 1000 {
		t.Fatalf("dynamic buffer sized %d/%d, want exactly 1000", b.Size(), b.Cap())
	}
	if st := p.Stats(); st.DynamicLive != 1 {
		t.Fatalf("dynamic live = %d, want 1", st.DynamicLive)
	}
	p.Release(b)
	if st := p.Stats(); st.DynamicLive != 0 {
		t.Fatalf("dynamic live after release = %d, want 0", st.DynamicLive)
	}
}

func TestDoubleReleasePanics(t *testing.T) {
	p := pool.New(64, 1, nil)
	b := p.Acquire(8)
	p.Release(b)
	defer func() {
		if recover() == nil {
			t.Fatal("double release must panic")
		}
	}()
	p.Release(b)
}

// Property: after N concurrent acquire/release interleavings the free list
// holds every block the pool ever allocated.
func TestConcurrentAcquireRelease(t *testing.T) {
	p := pool.New(256, 4, nil)
	const workers = 8
	const rounds = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				n := (seed*31+i)%256 + 1
				b := p.Acquire(n)
				b.Bytes()[0] = byte(i)
				p.Release(b)
			}
		}(w)
	}
	wg.Wait()

	st := p.Stats()
	if st.Leased != 0 {
		t.Fatalf("leased = %d after settling, want 0", st.Leased)
	}
	if st.FreeBlocks != st.TotalBlocks {
		t.Fatalf("free %d != total %d after settling", st.FreeBlocks, st.TotalBlocks)
	}
	if st.DynamicLive != 0 {
		t.Fatalf("dynamic live = %d, want 0", st.DynamicLive)
	}
}
