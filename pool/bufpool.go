// File: pool/bufpool.go
// Package pool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Free-list buffer pool with geometric growth. Each growth event doubles
// the block grant of the previous one, so n acquisitions cost O(log n)
// discrete backing allocations. Blocks of one growth event share a single
// backing array.

package pool

import (
	"sync"

	"go.uber.org/zap"

	"github.com/momentics/hioload-rpc/api"
)

const (
	// DefaultBlockCap is the capacity of one pooled block. Payloads
	// above it take the dynamic path.
	DefaultBlockCap = 4096

	// DefaultInitialBlocks is the preallocated block count.
	DefaultInitialBlocks = 8
)

// Pool implements api.BufferPool.
type Pool struct {
	mu   sync.Mutex
	free []*buffer

	blockCap int
	grant    int // blocks granted at the next growth event

	totalBlocks  int64
	growthEvents int64
	dynamicLive  int64

	log *zap.Logger
}

var _ api.BufferPool = (*Pool)(nil)

// New constructs a pool of initialBlocks preallocated blocks of blockCap
// bytes each. Non-positive arguments fall back to the defaults.
func New(blockCap, initialBlocks int, log *zap.Logger) *Pool {
	if blockCap <= 0 {
		blockCap = DefaultBlockCap
	}
	if initialBlocks <= 0 {
		initialBlocks = DefaultInitialBlocks
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{
		blockCap: blockCap,
		grant:    initialBlocks,
		log:      log,
	}
	// Initial preallocation does not advance the grant: the first growth
	// event re-grants the initial count, then doubles from there.
	p.prealloc(initialBlocks)
	return p
}

// Acquire returns a buffer with capacity >= n. It never blocks; exhaustion
// of the free list triggers a growth event, and allocation failure is
// process-fatal by design.
func (p *Pool) Acquire(n int) api.Buffer {
	if n < 0 {
		panic("pool: negative acquire size")
	}
	if n > p.blockCap {
		p.mu.Lock()
		p.dynamicLive++
		p.mu.Unlock()
		return &buffer{data: make([]byte, n), size: n, pooled: false, leased: true}
	}

	p.mu.Lock()
	if len(p.free) == 0 {
		p.extend()
		p.growthEvents++
	}
	b := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	b.leased = true
	b.size = n
	p.mu.Unlock()
	return b
}

// Release returns a buffer through the path that produced it. Releasing a
// foreign buffer or releasing twice is a protocol violation and fails
// fast.
func (p *Pool) Release(b api.Buffer) {
	bb, ok := b.(*buffer)
	if !ok {
		panic("pool: release of foreign buffer")
	}
	p.mu.Lock()
	if !bb.leased {
		p.mu.Unlock()
		panic("pool: double release")
	}
	bb.leased = false
	if bb.pooled {
		p.free = append(p.free, bb)
	} else {
		p.dynamicLive--
	}
	p.mu.Unlock()
}

// Stats returns a consistent accounting snapshot.
func (p *Pool) Stats() api.BufferPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	free := int64(len(p.free))
	return api.BufferPoolStats{
		TotalBlocks:  p.totalBlocks,
		FreeBlocks:   free,
		Leased:       p.totalBlocks - free,
		GrowthEvents: p.growthEvents,
		DynamicLive:  p.dynamicLive,
	}
}

// BlockCap returns the pooled block capacity.
func (p *Pool) BlockCap() int { return p.blockCap }

// extend performs one growth event: the current grant of blocks is carved
// out of a single backing allocation, then the grant doubles. Caller holds
// p.mu.
func (p *Pool) extend() {
	granted := p.grant
	p.prealloc(granted)
	p.grant *= 2
	p.log.Debug("pool growth",
		zap.Int("granted", granted),
		zap.Int64("total_blocks", p.totalBlocks))
}

// prealloc carves count blocks out of one backing allocation.
func (p *Pool) prealloc(count int) {
	backing := make([]byte, count*p.blockCap)
	for i := 0; i < count; i++ {
		p.free = append(p.free, &buffer{
			data:   backing[i*p.blockCap : (i+1)*p.blockCap : (i+1)*p.blockCap],
			pooled: true,
		})
	}
	p.totalBlocks += int64(count)
}
