// File: api/buffer.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Buffer and BufferPool contracts for request/response payload memory.
// A buffer has exactly one owner at any time; ownership moves at explicit
// hand-off points (handler -> send -> continuation -> release) and a
// released buffer must never be touched again.

package api

// Buffer describes a contiguous payload region with a capacity and a
// logical size (size <= capacity).
type Buffer interface {
	// Bytes returns the buffer contents up to the logical size.
	Bytes() []byte

	// Resize adjusts the logical size. n must not exceed Cap.
	Resize(n int)

	// Size returns the current logical size.
	Size() int

	// Cap returns the fixed capacity of the underlying region.
	Cap() int

	// Pooled reports whether the buffer is pool-leased (true) or
	// dynamically sized (false). The two kinds are released through
	// different paths and must never be mixed.
	Pooled() bool
}

// BufferPool leases reusable payload buffers.
//
// Acquire never blocks and never fails: allocation failure is treated as
// process-level resource exhaustion. Release must be called exactly once
// per acquired buffer; a double release is a fail-fast protocol violation.
type BufferPool interface {
	// Acquire returns a buffer with capacity >= n. Requests up to the
	// pool block capacity are served from the preallocated free list;
	// larger requests take the dynamic path sized exactly n.
	Acquire(n int) Buffer

	// Release returns a buffer through the path that produced it.
	Release(b Buffer)

	// Stats exposes accounting for observability and tests.
	Stats() BufferPoolStats
}

// BufferPoolStats aggregates pool accounting.
type BufferPoolStats struct {
	TotalBlocks  int64 // pooled blocks ever allocated
	FreeBlocks   int64 // pooled blocks currently on the free list
	Leased       int64 // pooled blocks currently leased out
	GrowthEvents int64 // discrete backing allocations performed
	DynamicLive  int64 // dynamic buffers currently outstanding
}
